package vdom

// ComponentDef is one entry of the server-supplied component catalog.
// Class sets are space-separated token strings; token order inside a set is
// preserved as served, so resolution stays deterministic.
type ComponentDef struct {
	Tag            string            `json:"tag" yaml:"tag"`
	Base           string            `json:"base,omitempty" yaml:"base"`
	Variants       map[string]string `json:"variants,omitempty" yaml:"variants"`
	Sizes          map[string]string `json:"sizes,omitempty" yaml:"sizes"`
	DefaultVariant string            `json:"default_variant,omitempty" yaml:"default_variant"`
}

// ReservedKeyPrefix marks catalog keys that carry metadata rather than
// component definitions. Reserved keys are excluded from the catalog count.
const ReservedKeyPrefix = "_"
