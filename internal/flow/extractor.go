package flow

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/BotWeave/BotWeave/internal/models"
)

// Extract maps an inbound channel message onto the declared components of the
// current screen, producing a {componentName: value} map. A WhatsApp message
// carries a single reply, so at most one slot is populated: an interactive
// selection id binds to the first selector component, a plain text body to
// the first free-text or date component. A text body falls back to the first
// selector when the screen declares no free-text component, so typed option
// values still route; a bare number there picks the option at that position,
// matching the numbered menus sent on transports without interactive lists.
func Extract(msg models.InboundMessage, screen *models.Screen) map[string]string {
	input := make(map[string]string)

	if msg.IsSelection() {
		for _, c := range screen.Components {
			if c.Kind.IsSelector() {
				input[c.Name] = msg.SelectionID
				return input
			}
		}
		slog.Debug("Extract: selection reply but no selector component", "screen", screen.ID)
		return input
	}

	body := strings.TrimSpace(msg.Body)
	if body == "" {
		return input
	}
	for _, c := range screen.Components {
		if c.Kind.AcceptsFreeText() {
			input[c.Name] = body
			return input
		}
	}
	for _, c := range screen.Components {
		if c.Kind.IsSelector() {
			input[c.Name] = selectorValue(c, body)
			return input
		}
	}
	return input
}

// selectorValue interprets a typed reply for a selector component. An exact
// option value wins; otherwise a bare 1-based number within range selects
// the option at that position. Anything else is bound verbatim.
func selectorValue(c models.Component, body string) string {
	for _, opt := range c.Options {
		if opt.Value == body {
			return body
		}
	}
	if n, err := strconv.Atoi(body); err == nil && n >= 1 && n <= len(c.Options) {
		return c.Options[n-1].Value
	}
	return body
}

// patternCache holds compiled validation regexes keyed by source pattern.
// Definitions are immutable, so entries never need invalidation.
var patternCache sync.Map

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}

// Validate checks the extracted input against each input-accepting
// component's declared constraints, in component declaration order. The
// first failure wins and is returned as a ValidationError; nil means the
// input is acceptable. Optional min/max length and pattern checks apply
// only when a value is present.
func Validate(components []models.Component, input map[string]string) *ValidationError {
	for _, c := range components {
		if !c.Kind.AcceptsInput() {
			continue
		}
		value := strings.TrimSpace(input[c.Name])
		if value == "" {
			if c.Required {
				return &ValidationError{
					Component: c.Name,
					Message:   fmt.Sprintf("%s is required.", c.DisplayLabel()),
				}
			}
			continue
		}
		length := utf8.RuneCountInString(value)
		if c.Min > 0 && length < c.Min {
			return &ValidationError{
				Component: c.Name,
				Message:   fmt.Sprintf("%s must be at least %d characters.", c.DisplayLabel(), c.Min),
			}
		}
		if c.Max > 0 && length > c.Max {
			return &ValidationError{
				Component: c.Name,
				Message:   fmt.Sprintf("%s must be at most %d characters.", c.DisplayLabel(), c.Max),
			}
		}
		if c.Pattern != "" {
			re, err := compilePattern(c.Pattern)
			if err != nil {
				// A broken pattern is an authoring mistake; don't punish the
				// user for it.
				slog.Warn("Validate: skipping uncompilable pattern", "component", c.Name, "pattern", c.Pattern, "error", err)
				continue
			}
			if !re.MatchString(value) {
				return &ValidationError{
					Component: c.Name,
					Message:   fmt.Sprintf("%s is not in the expected format.", c.DisplayLabel()),
				}
			}
		}
	}
	return nil
}
