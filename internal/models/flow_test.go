package models

import (
	"errors"
	"testing"
)

func TestParseFlowDefinition(t *testing.T) {
	raw := []byte(`{
		"meta": {"start": "welcome"},
		"screens": [
			{"id": "welcome", "components": [{"type": "text", "text": "Hi {{name}}"}], "footer": {"next": "ask_name"}},
			{"id": "ask_name", "components": [{"type": "input", "name": "name", "label": "Your name", "required": true}]}
		]
	}`)
	def, err := ParseFlowDefinition(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Meta.Start != "welcome" {
		t.Errorf("expected start screen 'welcome', got %q", def.Meta.Start)
	}
	if len(def.Screens) != 2 {
		t.Fatalf("expected 2 screens, got %d", len(def.Screens))
	}
	if def.Screens[1].Components[0].Kind != ComponentKindInput {
		t.Errorf("expected input component, got %q", def.Screens[1].Components[0].Kind)
	}
}

func TestParseFlowDefinitionMalformedJSON(t *testing.T) {
	if _, err := ParseFlowDefinition([]byte(`{"screens": [`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestFlowDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     FlowDefinition
		wantErr error
	}{
		{
			name:    "no screens",
			def:     FlowDefinition{},
			wantErr: ErrNoScreens,
		},
		{
			name: "empty screen id",
			def: FlowDefinition{Screens: []Screen{
				{ID: ""},
			}},
			wantErr: ErrEmptyScreenID,
		},
		{
			name: "duplicate screen id",
			def: FlowDefinition{Screens: []Screen{
				{ID: "a"}, {ID: "a"},
			}},
			wantErr: ErrDuplicateScreenID,
		},
		{
			name: "unknown start reference",
			def: FlowDefinition{
				Meta:    FlowMeta{Start: "missing"},
				Screens: []Screen{{ID: "a"}},
			},
			wantErr: ErrUnknownScreenRef,
		},
		{
			name: "unknown footer reference",
			def: FlowDefinition{Screens: []Screen{
				{ID: "a", Footer: &Footer{Next: "missing"}},
			}},
			wantErr: ErrUnknownScreenRef,
		},
		{
			name: "unknown route reference",
			def: FlowDefinition{Screens: []Screen{
				{ID: "a", Footer: &Footer{Routes: []Route{{If: "ctx.x==1", Next: "missing"}}}},
			}},
			wantErr: ErrUnknownScreenRef,
		},
		{
			name: "unknown option reference",
			def: FlowDefinition{Screens: []Screen{
				{ID: "a", Components: []Component{
					{Kind: ComponentKindDropdown, Name: "pick", Options: []Option{{Value: "y", Next: "missing"}}},
				}},
			}},
			wantErr: ErrUnknownScreenRef,
		},
		{
			name: "unknown component kind",
			def: FlowDefinition{Screens: []Screen{
				{ID: "a", Components: []Component{{Kind: "carousel"}}},
			}},
			wantErr: ErrUnknownKind,
		},
		{
			name: "unnamed input component",
			def: FlowDefinition{Screens: []Screen{
				{ID: "a", Components: []Component{{Kind: ComponentKindInput}}},
			}},
			wantErr: ErrUnnamedComponent,
		},
		{
			name: "valid definition",
			def: FlowDefinition{
				Meta: FlowMeta{Start: "a"},
				Screens: []Screen{
					{ID: "a", Components: []Component{
						{Kind: ComponentKindText, Text: "hello"},
						{Kind: ComponentKindDropdown, Name: "pick", Options: []Option{{Value: "y", Next: "b"}}},
					}},
					{ID: "b"},
				},
			},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestComponentKindCapabilities(t *testing.T) {
	tests := []struct {
		kind       ComponentKind
		input      bool
		freeText   bool
		isSelector bool
	}{
		{ComponentKindText, false, false, false},
		{ComponentKindImage, false, false, false},
		{ComponentKindInput, true, true, false},
		{ComponentKindDate, true, true, false},
		{ComponentKindDropdown, true, false, true},
	}
	for _, tt := range tests {
		if got := tt.kind.AcceptsInput(); got != tt.input {
			t.Errorf("%s.AcceptsInput() = %v, want %v", tt.kind, got, tt.input)
		}
		if got := tt.kind.AcceptsFreeText(); got != tt.freeText {
			t.Errorf("%s.AcceptsFreeText() = %v, want %v", tt.kind, got, tt.freeText)
		}
		if got := tt.kind.IsSelector(); got != tt.isSelector {
			t.Errorf("%s.IsSelector() = %v, want %v", tt.kind, got, tt.isSelector)
		}
	}
	if ComponentKind("carousel").IsValid() {
		t.Error("unexpected kind should not be valid")
	}
}

func TestComponentDisplayLabel(t *testing.T) {
	c := Component{Name: "email", Label: "Email address"}
	if c.DisplayLabel() != "Email address" {
		t.Errorf("expected label, got %q", c.DisplayLabel())
	}
	c.Label = ""
	if c.DisplayLabel() != "email" {
		t.Errorf("expected name fallback, got %q", c.DisplayLabel())
	}
}
