package flow

import (
	"strings"

	"github.com/BotWeave/BotWeave/internal/models"
)

// Navigation is pure and stateless: every function here depends only on its
// arguments, so repeated calls with the same inputs yield identical output.

// StartScreenID returns the id of the definition's start screen: meta.start
// when present, otherwise the first screen in order. Empty when the
// definition has no screens.
func StartScreenID(def *models.FlowDefinition) string {
	if len(def.Screens) == 0 {
		return ""
	}
	if def.Meta.Start != "" {
		return def.Meta.Start
	}
	return def.Screens[0].ID
}

// ScreenByID returns the screen with the given id, or nil when absent.
// Callers must treat nil as a definition error, never render a nil screen.
func ScreenByID(def *models.FlowDefinition, id string) *models.Screen {
	for i := range def.Screens {
		if def.Screens[i].ID == id {
			return &def.Screens[i]
		}
	}
	return nil
}

// DetermineNextScreenID computes where the conversation goes after current,
// given the freshly extracted input and the accumulated context. Resolution
// order, first match wins:
//
//  1. option-level routing on a selector component whose submitted value
//     matches an option that declares a next
//  2. a component's static next, once its bound input value is non-empty
//  3. footer conditional routes, evaluated in declaration order
//  4. footer static next
//  5. the screen following current in definition order
//
// Explicit per-answer branches override per-screen branches, which override
// conditional rules, which override simple chaining. Returns empty when the
// current screen is last and nothing routes elsewhere: end of flow.
func DetermineNextScreenID(def *models.FlowDefinition, current *models.Screen, input, ctx map[string]string) string {
	for _, c := range current.Components {
		if !c.Kind.IsSelector() {
			continue
		}
		value, ok := input[c.Name]
		if !ok || value == "" {
			continue
		}
		for _, opt := range c.Options {
			if opt.Value == value && opt.Next != "" {
				return opt.Next
			}
		}
	}

	for _, c := range current.Components {
		if c.Next != "" && input[c.Name] != "" {
			return c.Next
		}
	}

	if current.Footer != nil {
		for _, r := range current.Footer.Routes {
			if evalRouteCondition(r.If, ctx) {
				return r.Next
			}
		}
		if current.Footer.Next != "" {
			return current.Footer.Next
		}
	}

	for i := range def.Screens {
		if def.Screens[i].ID == current.ID {
			if i+1 < len(def.Screens) {
				return def.Screens[i+1].ID
			}
			return ""
		}
	}
	return ""
}

// evalRouteCondition evaluates the restricted route condition syntax:
// "ctx.<key>==<value>", no quoting, case-sensitive key, string-compared
// value. Anything else fails to match rather than erroring.
func evalRouteCondition(cond string, ctx map[string]string) bool {
	expr := strings.TrimSpace(cond)
	if !strings.HasPrefix(expr, "ctx.") {
		return false
	}
	rest := expr[len("ctx."):]
	idx := strings.Index(rest, "==")
	if idx <= 0 {
		return false
	}
	key := rest[:idx]
	want := rest[idx+2:]
	if strings.Contains(want, "==") {
		return false
	}
	got, ok := ctx[key]
	return ok && got == want
}
