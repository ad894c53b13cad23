package flow

import (
	"regexp"

	"github.com/BotWeave/BotWeave/internal/models"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([\w.]+)\s*\}\}`)

// Interpolate substitutes {{key}} placeholders in text with values from ctx.
// A placeholder whose key resolves to nothing is left literal; interpolation
// is the only templating logic, there are no loops or conditionals.
func Interpolate(text string, ctx map[string]string) string {
	if ctx == nil || text == "" {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		if value, ok := ctx[key]; ok {
			return value
		}
		return match
	})
}

// Render converts the identified screen plus the session context into
// channel-agnostic outbound message descriptors, one per component in
// declared order. A screen with no components at all falls back to a single
// text message carrying its title. Returns a DefinitionError when the screen
// id does not exist in the definition.
func Render(def *models.FlowDefinition, screenID string, ctx map[string]string) ([]models.OutboundMessage, error) {
	screen := ScreenByID(def, screenID)
	if screen == nil {
		return nil, &DefinitionError{Detail: "screen not found: " + screenID}
	}

	var msgs []models.OutboundMessage
	for _, c := range screen.Components {
		switch c.Kind {
		case models.ComponentKindText:
			if c.Text != "" {
				msgs = append(msgs, models.TextMessage(Interpolate(c.Text, ctx)))
			}
		case models.ComponentKindImage:
			if c.URL != "" {
				msgs = append(msgs, models.ImageMessage(c.URL, Interpolate(c.Caption, ctx)))
			}
		case models.ComponentKindDropdown:
			msgs = append(msgs, renderDropdown(screen, c, ctx))
		case models.ComponentKindInput, models.ComponentKindDate:
			// Date parsing is deferred to the next input cycle; at render
			// time both kinds are a plain text prompt.
			prompt := c.Text
			if prompt == "" {
				prompt = c.Label
			}
			if prompt != "" {
				msgs = append(msgs, models.TextMessage(Interpolate(prompt, ctx)))
			}
		}
	}

	if len(msgs) == 0 {
		msgs = append(msgs, models.TextMessage(Interpolate(screen.Title, ctx)))
	}
	return msgs, nil
}

func renderDropdown(screen *models.Screen, c models.Component, ctx map[string]string) models.OutboundMessage {
	header := c.Label
	if header == "" {
		header = screen.Title
	}
	body := c.Text
	if body == "" {
		body = c.Label
	}
	items := make([]models.ListItem, 0, len(c.Options))
	for _, opt := range c.Options {
		title := opt.Title
		if title == "" {
			title = opt.Value
		}
		items = append(items, models.ListItem{ID: opt.Value, Title: Interpolate(title, ctx)})
	}
	return models.ListMessage(Interpolate(header, ctx), Interpolate(body, ctx), items, "")
}
