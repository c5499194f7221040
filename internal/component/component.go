// Package component expands named component references into concrete node
// descriptors using the server-supplied catalog. The catalog is fetched once
// per session and is read-only thereafter.
package component

import (
	"log/slog"
	"strings"

	"github.com/jamesaudcent/infinidom/vdom"
)

// Catalog is the read-only component definition map. Reserved keys
// (prefix "_") are metadata and are dropped at construction.
type Catalog struct {
	defs map[string]vdom.ComponentDef
}

// NewCatalog builds a catalog from a raw server response, filtering
// reserved keys.
func NewCatalog(raw map[string]vdom.ComponentDef, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	defs := make(map[string]vdom.ComponentDef, len(raw))
	reserved := 0
	for name, def := range raw {
		if strings.HasPrefix(name, vdom.ReservedKeyPrefix) {
			reserved++
			continue
		}
		defs[name] = def
	}
	logger.Info("component: catalog loaded", "components", len(defs), "reserved", reserved)
	return &Catalog{defs: defs}
}

// Len is the number of usable component definitions.
func (c *Catalog) Len() int { return len(c.defs) }

// Get looks up a definition by name.
func (c *Catalog) Get(name string) (vdom.ComponentDef, bool) {
	def, ok := c.defs[name]
	return def, ok
}

// Resolver rewrites component references against a catalog.
type Resolver struct {
	catalog *Catalog
	logger  *slog.Logger
}

// NewResolver creates a Resolver. A nil catalog resolves nothing but keeps
// the runtime functional (every descriptor passes through unchanged).
func NewResolver(catalog *Catalog, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{catalog: catalog, logger: logger}
}

// Resolve expands the descriptor and its children. The input is never
// mutated: cached operations must stay immutable, so resolution works on a
// deep copy. An unknown component name is non-fatal: the original
// descriptor is returned with the reference still attached and without
// recursing into it.
func (r *Resolver) Resolve(n *vdom.Node) *vdom.Node {
	if n == nil {
		return nil
	}
	return r.resolve(n.Clone())
}

func (r *Resolver) resolve(n *vdom.Node) *vdom.Node {
	if n.IsText() {
		return n
	}

	if n.Component != "" {
		if r.catalog == nil {
			return n
		}
		def, ok := r.catalog.Get(n.Component)
		if !ok {
			r.logger.Warn("component: unknown reference", "component", n.Component)
			return n
		}
		r.expand(n, def)
	}

	for i := range n.Children {
		n.Children[i] = *r.resolve(&n.Children[i])
	}
	return n
}

// expand applies a definition in place: base tag, then class tokens in the
// fixed order {base, variant-or-default, size, explicit extra classes}. The
// order is load-bearing: cache-replay equality compares rendered output.
func (r *Resolver) expand(n *vdom.Node, def vdom.ComponentDef) {
	if n.Tag == "" {
		n.Tag = def.Tag
	}

	var tokens []string
	tokens = append(tokens, strings.Fields(def.Base)...)

	variant := n.Variant
	if variant == "" {
		variant = def.DefaultVariant
	}
	if variant != "" {
		if cls, ok := def.Variants[variant]; ok {
			tokens = append(tokens, strings.Fields(cls)...)
		} else {
			r.logger.Warn("component: unknown variant", "component", n.Component, "variant", variant)
		}
	}

	if n.Size != "" {
		if cls, ok := def.Sizes[n.Size]; ok {
			tokens = append(tokens, strings.Fields(cls)...)
		} else {
			r.logger.Warn("component: unknown size", "component", n.Component, "size", n.Size)
		}
	}

	tokens = append(tokens, n.Classes()...)
	if len(tokens) > 0 {
		n.SetAttr("class", strings.Join(tokens, " "))
	}

	n.Component = ""
	n.Variant = ""
	n.Size = ""
}
