package devserver

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jamesaudcent/infinidom/vdom"
)

// Script is the YAML description of what the dev server serves: a
// component catalog, per-path operation frames, and canned interaction
// responses. Frames are written in the wire shape and passed through
// verbatim, so a script can exercise malformed and unknown frames too.
type Script struct {
	Components   map[string]vdom.ComponentDef `yaml:"components"`
	Pages        map[string]Page              `yaml:"pages"`
	Interactions []InteractionRule            `yaml:"interactions"`
}

// Page is the scripted stream for one path.
type Page struct {
	Frames []Frame `yaml:"frames"`
	// Error, when set, ends the stream with an error frame instead of
	// complete. Frames before it are still delivered.
	Error string `yaml:"error"`
}

// Frame is one raw stream payload.
type Frame map[string]any

// JSON renders the frame as its wire payload.
func (f Frame) JSON() ([]byte, error) {
	return json.Marshal(map[string]any(f))
}

// InteractionRule matches incoming interaction events to a scripted
// response. Empty match fields are wildcards; the first matching rule wins.
type InteractionRule struct {
	Match  Match   `yaml:"match"`
	Frames []Frame `yaml:"frames"`
	Error  string  `yaml:"error"`
}

// Match narrows which events a rule answers.
type Match struct {
	EventType string `yaml:"event_type"`
	TargetID  string `yaml:"target_id"`
	TargetTag string `yaml:"target_tag"`
}

func (m Match) matches(ev vdom.Event) bool {
	if m.EventType != "" && m.EventType != ev.EventType {
		return false
	}
	if m.TargetID != "" && m.TargetID != ev.TargetID {
		return false
	}
	if m.TargetTag != "" && m.TargetTag != ev.TargetTag {
		return false
	}
	return true
}

// LoadScript reads a YAML script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devserver: read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("devserver: parse script: %w", err)
	}
	if s.Pages == nil {
		s.Pages = make(map[string]Page)
	}
	return &s, nil
}
