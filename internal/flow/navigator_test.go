package flow

import (
	"reflect"
	"testing"

	"github.com/BotWeave/BotWeave/internal/models"
)

func TestStartScreenID(t *testing.T) {
	tests := []struct {
		name string
		def  models.FlowDefinition
		want string
	}{
		{
			name: "meta start wins",
			def: models.FlowDefinition{
				Meta:    models.FlowMeta{Start: "b"},
				Screens: []models.Screen{{ID: "a"}, {ID: "b"}},
			},
			want: "b",
		},
		{
			name: "first screen fallback",
			def: models.FlowDefinition{
				Screens: []models.Screen{{ID: "a"}, {ID: "b"}},
			},
			want: "a",
		},
		{
			name: "no screens",
			def:  models.FlowDefinition{},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StartScreenID(&tt.def)
			if got != tt.want {
				t.Errorf("StartScreenID() = %q, want %q", got, tt.want)
			}
			if got != "" && ScreenByID(&tt.def, got) == nil {
				t.Errorf("start screen %q not present in definition", got)
			}
		})
	}
}

func TestScreenByID(t *testing.T) {
	def := &models.FlowDefinition{Screens: []models.Screen{{ID: "a"}, {ID: "b"}}}
	if s := ScreenByID(def, "b"); s == nil || s.ID != "b" {
		t.Error("expected screen b")
	}
	if s := ScreenByID(def, "missing"); s != nil {
		t.Error("expected nil for unknown id")
	}
}

func TestDetermineNextScreenIDFooterNext(t *testing.T) {
	// A screen without components advances through its footer's static next.
	def := &models.FlowDefinition{Screens: []models.Screen{
		{ID: "A", Footer: &models.Footer{Next: "B"}},
		{ID: "B"},
	}}
	got := DetermineNextScreenID(def, &def.Screens[0], map[string]string{}, map[string]string{})
	if got != "B" {
		t.Errorf("expected footer next B, got %q", got)
	}
}

func TestDetermineNextScreenIDOptionOverridesFooter(t *testing.T) {
	// An option-level next on the chosen value beats the footer's static next.
	def := &models.FlowDefinition{Screens: []models.Screen{
		{
			ID: "A",
			Components: []models.Component{{
				Kind: models.ComponentKindDropdown,
				Name: "choice",
				Options: []models.Option{
					{Value: "x", Next: "X"},
					{Value: "y", Next: "Y"},
				},
			}},
			Footer: &models.Footer{Next: "Z"},
		},
		{ID: "X"}, {ID: "Y"}, {ID: "Z"},
	}}
	got := DetermineNextScreenID(def, &def.Screens[0], map[string]string{"choice": "y"}, nil)
	if got != "Y" {
		t.Errorf("expected option next Y, got %q", got)
	}
}

func TestDetermineNextScreenIDPrecedence(t *testing.T) {
	def := &models.FlowDefinition{Screens: []models.Screen{
		{
			ID: "current",
			Components: []models.Component{
				{
					Kind: models.ComponentKindDropdown,
					Name: "pick",
					Options: []models.Option{
						{Value: "routed", Next: "opt_target"},
						{Value: "plain"},
					},
				},
				{Kind: models.ComponentKindInput, Name: "answer", Next: "comp_target"},
			},
			Footer: &models.Footer{
				Routes: []models.Route{{If: "ctx.tier==gold", Next: "route_target"}},
				Next:   "footer_target",
			},
		},
		{ID: "opt_target"},
		{ID: "comp_target"},
		{ID: "route_target"},
		{ID: "footer_target"},
		{ID: "linear_target"},
	}}
	current := &def.Screens[0]

	tests := []struct {
		name  string
		input map[string]string
		ctx   map[string]string
		want  string
	}{
		{
			name:  "rule 1: option next wins over everything",
			input: map[string]string{"pick": "routed"},
			ctx:   map[string]string{"tier": "gold"},
			want:  "opt_target",
		},
		{
			name:  "rule 2: component next on bound input",
			input: map[string]string{"answer": "hello"},
			ctx:   map[string]string{"tier": "gold"},
			want:  "comp_target",
		},
		{
			name:  "rule 2: option without next falls through to component next only when bound",
			input: map[string]string{"pick": "plain"},
			ctx:   map[string]string{},
			want:  "footer_target",
		},
		{
			name:  "rule 3: conditional route on context",
			input: map[string]string{},
			ctx:   map[string]string{"tier": "gold"},
			want:  "route_target",
		},
		{
			name:  "rule 4: footer static next",
			input: map[string]string{},
			ctx:   map[string]string{"tier": "silver"},
			want:  "footer_target",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetermineNextScreenID(def, current, tt.input, tt.ctx)
			if got != tt.want {
				t.Errorf("DetermineNextScreenID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetermineNextScreenIDLinearFallback(t *testing.T) {
	def := &models.FlowDefinition{Screens: []models.Screen{
		{ID: "first"}, {ID: "second"}, {ID: "last"},
	}}
	if got := DetermineNextScreenID(def, &def.Screens[0], nil, nil); got != "second" {
		t.Errorf("expected linear fallback to second, got %q", got)
	}
	if got := DetermineNextScreenID(def, &def.Screens[2], nil, nil); got != "" {
		t.Errorf("expected end of flow on last screen, got %q", got)
	}
}

func TestDetermineNextScreenIDDeterministic(t *testing.T) {
	def := &models.FlowDefinition{Screens: []models.Screen{
		{
			ID: "A",
			Components: []models.Component{{
				Kind:    models.ComponentKindDropdown,
				Name:    "pick",
				Options: []models.Option{{Value: "y", Next: "B"}},
			}},
			Footer: &models.Footer{Next: "C"},
		},
		{ID: "B"}, {ID: "C"},
	}}
	input := map[string]string{"pick": "y"}
	ctx := map[string]string{"seen": "1"}
	first := DetermineNextScreenID(def, &def.Screens[0], input, ctx)
	for i := 0; i < 10; i++ {
		if got := DetermineNextScreenID(def, &def.Screens[0], input, ctx); got != first {
			t.Fatalf("call %d returned %q, first call returned %q", i, got, first)
		}
	}
	if !reflect.DeepEqual(input, map[string]string{"pick": "y"}) {
		t.Error("input map was mutated")
	}
	if !reflect.DeepEqual(ctx, map[string]string{"seen": "1"}) {
		t.Error("context map was mutated")
	}
}

func TestEvalRouteCondition(t *testing.T) {
	ctx := map[string]string{"tier": "gold", "count": "3", "empty": ""}

	tests := []struct {
		cond string
		want bool
	}{
		{"ctx.tier==gold", true},
		{" ctx.tier==gold ", true},
		{"ctx.tier==silver", false},
		{"ctx.count==3", true},
		{"ctx.missing==x", false},
		{"ctx.empty==", true},
		{"ctx.Tier==gold", false},
		{"tier==gold", false},
		{"ctx.tier=gold", false},
		{"ctx.==gold", false},
		{"ctx.tier==a==b", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := evalRouteCondition(tt.cond, ctx); got != tt.want {
			t.Errorf("evalRouteCondition(%q) = %v, want %v", tt.cond, got, tt.want)
		}
	}
}
