package vdom

// Event is the structured summary of one user interaction, sent to the
// remote generator. Field names are fixed by the backend contract.
type Event struct {
	EventType      string            `json:"event_type"`
	TargetSelector string            `json:"target_selector,omitempty"`
	TargetTag      string            `json:"target_tag,omitempty"`
	TargetText     string            `json:"target_text,omitempty"`
	TargetID       string            `json:"target_id,omitempty"`
	TargetClasses  []string          `json:"target_classes,omitempty"`
	InputValue     string            `json:"input_value,omitempty"`
	Href           string            `json:"href,omitempty"`
	Path           string            `json:"path,omitempty"`
	DataAttributes map[string]string `json:"data_attributes,omitempty"`
	FormData       map[string]string `json:"form_data,omitempty"`

	// ElementHierarchy lists semantic summaries of the target's ancestors,
	// nearest first, capped at MaxAncestry entries. The page root itself is
	// never included.
	ElementHierarchy []Ancestor `json:"element_hierarchy,omitempty"`
}

// MaxAncestry is the depth ceiling for ElementHierarchy.
const MaxAncestry = 10

// Ancestor summarises one element on the path from the interaction target
// to the page root.
type Ancestor struct {
	Tag            string            `json:"tag"`
	ID             string            `json:"id,omitempty"`
	Classes        []string          `json:"classes,omitempty"`
	DataAttributes map[string]string `json:"data_attributes,omitempty"`
	Role           string            `json:"role,omitempty"`
	AriaLabel      string            `json:"aria_label,omitempty"`
	Text           string            `json:"text,omitempty"`
}

// Viewport carries the client viewport dimensions.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// InteractionRequest is the POST body of the interaction stream endpoint.
type InteractionRequest struct {
	SessionID  string    `json:"session_id,omitempty"`
	Event      Event     `json:"event"`
	CurrentURL string    `json:"current_url,omitempty"`
	Viewport   *Viewport `json:"viewport,omitempty"`
	CurrentDOM string    `json:"current_dom,omitempty"`
}

// NavigateNotice is the fire-and-forget body sent when a cached page is
// served locally, keeping server-held conversational context aligned.
type NavigateNotice struct {
	SessionID string `json:"session_id,omitempty"`
	Path      string `json:"path"`
}
