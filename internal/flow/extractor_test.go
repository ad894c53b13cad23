package flow

import (
	"strings"
	"testing"

	"github.com/BotWeave/BotWeave/internal/models"
)

func TestExtract(t *testing.T) {
	screen := &models.Screen{
		ID: "ask",
		Components: []models.Component{
			{Kind: models.ComponentKindText, Text: "intro"},
			{Kind: models.ComponentKindDropdown, Name: "choice", Options: []models.Option{{Value: "a"}}},
			{Kind: models.ComponentKindInput, Name: "answer"},
		},
	}

	tests := []struct {
		name string
		msg  models.InboundMessage
		want map[string]string
	}{
		{
			name: "selection binds to first selector",
			msg:  models.InboundMessage{From: "1555", SelectionID: "a", Body: "A label"},
			want: map[string]string{"choice": "a"},
		},
		{
			name: "text binds to first free text component",
			msg:  models.InboundMessage{From: "1555", Body: "hello there"},
			want: map[string]string{"answer": "hello there"},
		},
		{
			name: "text is trimmed",
			msg:  models.InboundMessage{From: "1555", Body: "  hi  "},
			want: map[string]string{"answer": "hi"},
		},
		{
			name: "empty body binds nothing",
			msg:  models.InboundMessage{From: "1555", Body: "   "},
			want: map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.msg, screen)
			if len(got) != len(tt.want) {
				t.Fatalf("Extract() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("Extract()[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestExtractTextFallsBackToSelector(t *testing.T) {
	// A screen with only a dropdown still routes typed option values.
	screen := &models.Screen{
		ID: "pick",
		Components: []models.Component{
			{Kind: models.ComponentKindDropdown, Name: "choice", Options: []models.Option{{Value: "yes"}}},
		},
	}
	got := Extract(models.InboundMessage{From: "1555", Body: "yes"}, screen)
	if got["choice"] != "yes" {
		t.Errorf("expected typed value bound to selector, got %v", got)
	}
}

func TestExtractNumberedReplySelectsOption(t *testing.T) {
	// Transports without interactive lists send a numbered text menu, so a
	// bare number picks the option at that position. An option whose value
	// is itself a number stays an exact match.
	screen := &models.Screen{
		ID: "pick",
		Components: []models.Component{
			{Kind: models.ComponentKindDropdown, Name: "plan", Options: []models.Option{
				{Value: "basic", Title: "Basic"},
				{Value: "pro", Title: "Pro"},
			}},
		},
	}
	tests := []struct {
		name string
		body string
		want string
	}{
		{"second option by number", "2", "pro"},
		{"first option by number", "1", "basic"},
		{"out of range stays verbatim", "3", "3"},
		{"zero stays verbatim", "0", "0"},
		{"exact value stays verbatim", "pro", "pro"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(models.InboundMessage{From: "1555", Body: tt.body}, screen)
			if got["plan"] != tt.want {
				t.Errorf("plan = %q, want %q", got["plan"], tt.want)
			}
		})
	}

	numeric := &models.Screen{
		ID: "rating",
		Components: []models.Component{
			{Kind: models.ComponentKindDropdown, Name: "stars", Options: []models.Option{
				{Value: "1"}, {Value: "2"}, {Value: "3"},
			}},
		},
	}
	got := Extract(models.InboundMessage{From: "1555", Body: "2"}, numeric)
	if got["stars"] != "2" {
		t.Errorf("numeric option value must match exactly, got %q", got["stars"])
	}
}

func TestExtractSelectionWithoutSelector(t *testing.T) {
	screen := &models.Screen{
		ID:         "info",
		Components: []models.Component{{Kind: models.ComponentKindText, Text: "hi"}},
	}
	got := Extract(models.InboundMessage{From: "1555", SelectionID: "stray"}, screen)
	if len(got) != 0 {
		t.Errorf("expected no binding for stray selection, got %v", got)
	}
}

func TestValidateRequired(t *testing.T) {
	components := []models.Component{
		{Kind: models.ComponentKindText, Text: "intro"},
		{Kind: models.ComponentKindInput, Name: "name", Label: "Your name", Required: true},
	}

	verr := Validate(components, map[string]string{})
	if verr == nil {
		t.Fatal("expected validation error for missing required value")
	}
	if verr.Component != "name" {
		t.Errorf("unexpected failing component: %q", verr.Component)
	}
	if verr.Message != "Your name is required." {
		t.Errorf("unexpected message: %q", verr.Message)
	}

	if verr := Validate(components, map[string]string{"name": "Ada"}); verr != nil {
		t.Errorf("unexpected error: %v", verr)
	}
}

func TestValidateFirstFailureWins(t *testing.T) {
	components := []models.Component{
		{Kind: models.ComponentKindInput, Name: "first", Label: "First", Required: true},
		{Kind: models.ComponentKindInput, Name: "second", Label: "Second", Required: true},
	}
	verr := Validate(components, map[string]string{})
	if verr == nil {
		t.Fatal("expected validation error")
	}
	if verr.Component != "first" {
		t.Errorf("expected first component in declaration order to fail, got %q", verr.Component)
	}
}

func TestValidateLengthAndPattern(t *testing.T) {
	tests := []struct {
		name      string
		component models.Component
		value     string
		wantMsg   string
	}{
		{
			name:      "below min",
			component: models.Component{Kind: models.ComponentKindInput, Name: "code", Label: "Code", Min: 4},
			value:     "ab",
			wantMsg:   "Code must be at least 4 characters.",
		},
		{
			name:      "above max",
			component: models.Component{Kind: models.ComponentKindInput, Name: "code", Label: "Code", Max: 3},
			value:     "abcdef",
			wantMsg:   "Code must be at most 3 characters.",
		},
		{
			name:      "multibyte value counts runes not bytes",
			component: models.Component{Kind: models.ComponentKindInput, Name: "name", Label: "Name", Max: 5},
			value:     "Zoé✨!",
			wantMsg:   "",
		},
		{
			name:      "multibyte value still too short",
			component: models.Component{Kind: models.ComponentKindInput, Name: "name", Label: "Name", Min: 4},
			value:     "Zoé",
			wantMsg:   "Name must be at least 4 characters.",
		},
		{
			name:      "pattern mismatch",
			component: models.Component{Kind: models.ComponentKindInput, Name: "email", Label: "Email", Pattern: `^\S+@\S+$`},
			value:     "not-an-email",
			wantMsg:   "Email is not in the expected format.",
		},
		{
			name:      "pattern match",
			component: models.Component{Kind: models.ComponentKindInput, Name: "email", Label: "Email", Pattern: `^\S+@\S+$`},
			value:     "a@b.com",
			wantMsg:   "",
		},
		{
			name:      "optional empty value skips checks",
			component: models.Component{Kind: models.ComponentKindInput, Name: "code", Label: "Code", Min: 4},
			value:     "",
			wantMsg:   "",
		},
		{
			name:      "uncompilable pattern is skipped",
			component: models.Component{Kind: models.ComponentKindInput, Name: "raw", Label: "Raw", Pattern: `([`},
			value:     "anything",
			wantMsg:   "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := Validate([]models.Component{tt.component}, map[string]string{tt.component.Name: tt.value})
			if tt.wantMsg == "" {
				if verr != nil {
					t.Errorf("unexpected error: %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("expected validation error")
			}
			if verr.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", verr.Message, tt.wantMsg)
			}
		})
	}
}

func TestValidationErrorIsValue(t *testing.T) {
	verr := &ValidationError{Component: "name", Message: "Name is required."}
	if !strings.Contains(verr.Error(), "required") {
		t.Errorf("unexpected Error(): %q", verr.Error())
	}
}
