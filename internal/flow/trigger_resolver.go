package flow

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/BotWeave/BotWeave/internal/models"
)

// TriggerRepository lists the active keyword routing entries. Defined here so
// the engine depends on a narrow contract rather than a storage technology.
type TriggerRepository interface {
	ListActiveTriggers() ([]models.Trigger, error)
}

// TriggerResolver maps an inbound free-text keyword to a flow version before
// a session has a flow assigned. It has no side effects.
type TriggerResolver struct {
	triggers TriggerRepository
}

// NewTriggerResolver creates a resolver over the given trigger table.
func NewTriggerResolver(triggers TriggerRepository) *TriggerResolver {
	return &TriggerResolver{triggers: triggers}
}

// Resolve takes only the first whitespace-delimited token of text, lower-
// cases it, and looks up an exact case-insensitive match among active
// triggers, ordered by ascending priority then descending recency. Returns
// nil when there is no token or no match; the caller presents a fallback
// menu in that case.
func (r *TriggerResolver) Resolve(text string) (*models.Trigger, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, nil
	}
	token := strings.ToLower(fields[0])

	triggers, err := r.triggers.ListActiveTriggers()
	if err != nil {
		slog.Error("TriggerResolver.Resolve: listing triggers failed", "error", err)
		return nil, err
	}

	// Don't trust store ordering; the precedence rule lives here.
	sort.SliceStable(triggers, func(i, j int) bool {
		if triggers[i].Priority != triggers[j].Priority {
			return triggers[i].Priority < triggers[j].Priority
		}
		return triggers[i].CreatedAt.After(triggers[j].CreatedAt)
	})

	for i := range triggers {
		if !triggers[i].IsActive {
			continue
		}
		if strings.ToLower(triggers[i].Keyword) == token {
			slog.Debug("TriggerResolver.Resolve: matched", "keyword", token, "flow_version", triggers[i].FlowVersionRef, "priority", triggers[i].Priority)
			return &triggers[i], nil
		}
	}
	slog.Debug("TriggerResolver.Resolve: no match", "token", token)
	return nil, nil
}

// ActiveKeywords returns the distinct keywords of all active triggers in
// precedence order, for building the fallback menu.
func (r *TriggerResolver) ActiveKeywords() ([]string, error) {
	triggers, err := r.triggers.ListActiveTriggers()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(triggers, func(i, j int) bool {
		if triggers[i].Priority != triggers[j].Priority {
			return triggers[i].Priority < triggers[j].Priority
		}
		return triggers[i].CreatedAt.After(triggers[j].CreatedAt)
	})
	seen := make(map[string]bool)
	var keywords []string
	for _, t := range triggers {
		if !t.IsActive {
			continue
		}
		kw := strings.ToLower(t.Keyword)
		if !seen[kw] {
			seen[kw] = true
			keywords = append(keywords, kw)
		}
	}
	return keywords, nil
}
