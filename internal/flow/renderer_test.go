package flow

import (
	"errors"
	"reflect"
	"testing"

	"github.com/BotWeave/BotWeave/internal/models"
)

func TestInterpolate(t *testing.T) {
	ctx := map[string]string{"name": "Ada", "user.city": "London"}

	tests := []struct {
		text string
		want string
	}{
		{"Hello {{name}}!", "Hello Ada!"},
		{"Hello {{ name }}!", "Hello Ada!"},
		{"{{name}} from {{user.city}}", "Ada from London"},
		{"No placeholders", "No placeholders"},
		{"Unknown {{missing}} stays", "Unknown {{missing}} stays"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Interpolate(tt.text, ctx); got != tt.want {
			t.Errorf("Interpolate(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}

	if got := Interpolate("{{name}}", nil); got != "{{name}}" {
		t.Errorf("nil context should leave placeholders literal, got %q", got)
	}
}

func TestRenderComponents(t *testing.T) {
	def := &models.FlowDefinition{Screens: []models.Screen{
		{
			ID:    "welcome",
			Title: "Welcome",
			Components: []models.Component{
				{Kind: models.ComponentKindText, Text: "Hi {{name}}"},
				{Kind: models.ComponentKindImage, URL: "https://example.com/a.png", Caption: "our shop"},
				{Kind: models.ComponentKindInput, Name: "email", Label: "Your email"},
				{Kind: models.ComponentKindDropdown, Name: "plan", Label: "Pick a plan", Options: []models.Option{
					{Value: "basic", Title: "Basic"},
					{Value: "pro"},
				}},
			},
		},
	}}

	msgs, err := Render(def, "welcome", map[string]string{"name": "Ada"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Kind != models.MessageKindText || msgs[0].Body != "Hi Ada" {
		t.Errorf("unexpected text message: %+v", msgs[0])
	}
	if msgs[1].Kind != models.MessageKindImage || msgs[1].ImageURL != "https://example.com/a.png" {
		t.Errorf("unexpected image message: %+v", msgs[1])
	}
	if msgs[2].Kind != models.MessageKindText || msgs[2].Body != "Your email" {
		t.Errorf("input should render its prompt: %+v", msgs[2])
	}
	if msgs[3].Kind != models.MessageKindList {
		t.Fatalf("expected list message, got %+v", msgs[3])
	}
	wantItems := []models.ListItem{{ID: "basic", Title: "Basic"}, {ID: "pro", Title: "pro"}}
	if !reflect.DeepEqual(msgs[3].Items, wantItems) {
		t.Errorf("list items = %v, want %v", msgs[3].Items, wantItems)
	}
}

func TestRenderEmptyScreenFallsBackToTitle(t *testing.T) {
	def := &models.FlowDefinition{Screens: []models.Screen{
		{ID: "done", Title: "Thanks {{name}}"},
	}}
	msgs, err := Render(def, "done", map[string]string{"name": "Ada"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Body != "Thanks Ada" {
		t.Errorf("expected single title message, got %v", msgs)
	}
}

func TestRenderUnknownScreen(t *testing.T) {
	def := &models.FlowDefinition{Screens: []models.Screen{{ID: "a"}}}
	_, err := Render(def, "missing", nil)
	if err == nil {
		t.Fatal("expected error for unknown screen")
	}
	var derr *DefinitionError
	if !errors.As(err, &derr) {
		t.Errorf("expected DefinitionError, got %T", err)
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	def := &models.FlowDefinition{Screens: []models.Screen{
		{
			ID:    "start",
			Title: "Start",
			Components: []models.Component{
				{Kind: models.ComponentKindText, Text: "Welcome, {{name}}"},
				{Kind: models.ComponentKindDropdown, Name: "pick", Options: []models.Option{{Value: "a", Title: "A"}}},
			},
		},
	}}
	ctx := map[string]string{"name": "Ada"}
	first, err := Render(def, "start", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Render(def, "start", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated render differs: %v vs %v", first, second)
	}
}
