// Package models defines the core data structures for BotWeave.
//
// It includes the canonical flow definition document, session state, trigger
// routing entries, and the channel-agnostic message descriptors shared across
// modules.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ComponentKind identifies what a screen component does at extract, validate
// and render time. The set is closed: extractor and renderer switch over it
// exhaustively, and capability helpers below are the single source of truth
// for which kinds accept input or act as selectors.
type ComponentKind string

const (
	// ComponentKindText renders a static text body.
	ComponentKindText ComponentKind = "text"
	// ComponentKindImage renders an image with an optional caption.
	ComponentKindImage ComponentKind = "image"
	// ComponentKindInput prompts for a free-text answer.
	ComponentKindInput ComponentKind = "input"
	// ComponentKindDate prompts for a date answer. Parsing happens on the
	// next input cycle, not at render time.
	ComponentKindDate ComponentKind = "date"
	// ComponentKindDropdown prompts with a selectable list of options.
	ComponentKindDropdown ComponentKind = "dropdown"
)

// IsValid reports whether the kind is one of the supported component kinds.
func (k ComponentKind) IsValid() bool {
	switch k {
	case ComponentKindText, ComponentKindImage, ComponentKindInput, ComponentKindDate, ComponentKindDropdown:
		return true
	default:
		return false
	}
}

// AcceptsInput reports whether the kind binds an inbound answer to a
// component name.
func (k ComponentKind) AcceptsInput() bool {
	switch k {
	case ComponentKindInput, ComponentKindDate, ComponentKindDropdown:
		return true
	default:
		return false
	}
}

// AcceptsFreeText reports whether the kind expects a plain text reply.
func (k ComponentKind) AcceptsFreeText() bool {
	return k == ComponentKindInput || k == ComponentKindDate
}

// IsSelector reports whether the kind expects an interactive selection id.
func (k ComponentKind) IsSelector() bool {
	return k == ComponentKindDropdown
}

// Option is one selectable entry of a selector component. Value is the
// stable id carried back in the interactive reply; Next, when set, routes the
// conversation to that screen when the option is chosen.
type Option struct {
	Value string `json:"value"`
	Title string `json:"title,omitempty"`
	Next  string `json:"next,omitempty"`
}

// Component is a single input/output element on a screen.
type Component struct {
	Kind     ComponentKind `json:"type"`
	Name     string        `json:"name,omitempty"`
	Label    string        `json:"label,omitempty"`
	Text     string        `json:"text,omitempty"`
	URL      string        `json:"url,omitempty"`
	Caption  string        `json:"caption,omitempty"`
	Required bool          `json:"required,omitempty"`
	Min      int           `json:"min,omitempty"`
	Max      int           `json:"max,omitempty"`
	Pattern  string        `json:"pattern,omitempty"`
	Options  []Option      `json:"options,omitempty"`
	Next     string        `json:"next,omitempty"`
}

// DisplayLabel returns the label used in user-facing validation messages.
func (c Component) DisplayLabel() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Name
}

// Route is one conditional footer rule. If holds a restricted condition
// expression of the form "ctx.<key>==<value>"; any other syntax never
// matches.
type Route struct {
	If   string `json:"if"`
	Next string `json:"next"`
}

// Footer holds a screen's transition rules: conditional routes evaluated in
// declaration order, then an optional static next.
type Footer struct {
	Next   string  `json:"next,omitempty"`
	Routes []Route `json:"routes,omitempty"`
}

// Screen is one step of a flow.
type Screen struct {
	ID         string      `json:"id"`
	Title      string      `json:"title,omitempty"`
	Components []Component `json:"components,omitempty"`
	Footer     *Footer     `json:"footer,omitempty"`
}

// FlowMeta carries definition-level metadata.
type FlowMeta struct {
	Start string `json:"start,omitempty"`
}

// FlowDefinition is one immutable flow version document. Screens are
// ordered; absence of explicit routing falls back to the next screen in this
// order.
type FlowDefinition struct {
	Meta    FlowMeta `json:"meta,omitempty"`
	Screens []Screen `json:"screens"`
}

// Flow definition validation errors.
var (
	ErrNoScreens         = errors.New("flow definition has no screens")
	ErrEmptyScreenID     = errors.New("screen id cannot be empty")
	ErrDuplicateScreenID = errors.New("duplicate screen id")
	ErrUnknownScreenRef  = errors.New("reference to unknown screen id")
	ErrUnknownKind       = errors.New("unknown component kind")
	ErrUnnamedComponent  = errors.New("input component has no name")
)

// ParseFlowDefinition decodes and validates a flow definition document.
// This is the single deserialization path: every consumer goes through it,
// so malformed documents fail here rather than at render time.
func ParseFlowDefinition(data []byte) (*FlowDefinition, error) {
	var def FlowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("malformed flow definition JSON: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the structural invariants of the definition: screens are
// present with unique non-empty ids, every next/route reference resolves to
// an existing screen, component kinds are known, and input components carry
// a name to bind their answer to.
func (d *FlowDefinition) Validate() error {
	if len(d.Screens) == 0 {
		return ErrNoScreens
	}
	ids := make(map[string]bool, len(d.Screens))
	for _, s := range d.Screens {
		if s.ID == "" {
			return ErrEmptyScreenID
		}
		if ids[s.ID] {
			return fmt.Errorf("%w: %q", ErrDuplicateScreenID, s.ID)
		}
		ids[s.ID] = true
	}
	checkRef := func(where, ref string) error {
		if ref != "" && !ids[ref] {
			return fmt.Errorf("%w: %s references %q", ErrUnknownScreenRef, where, ref)
		}
		return nil
	}
	if err := checkRef("meta.start", d.Meta.Start); err != nil {
		return err
	}
	for _, s := range d.Screens {
		for _, c := range s.Components {
			if !c.Kind.IsValid() {
				return fmt.Errorf("%w: %q on screen %q", ErrUnknownKind, c.Kind, s.ID)
			}
			if c.Kind.AcceptsInput() && c.Name == "" {
				return fmt.Errorf("%w: %s component on screen %q", ErrUnnamedComponent, c.Kind, s.ID)
			}
			if err := checkRef("component "+c.Name, c.Next); err != nil {
				return err
			}
			for _, opt := range c.Options {
				if err := checkRef("option "+opt.Value, opt.Next); err != nil {
					return err
				}
			}
		}
		if s.Footer != nil {
			if err := checkRef("footer of "+s.ID, s.Footer.Next); err != nil {
				return err
			}
			for _, r := range s.Footer.Routes {
				if err := checkRef("route of "+s.ID, r.Next); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
