package flow

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/BotWeave/BotWeave/internal/models"
)

// mockTriggerRepo is an in-package TriggerRepository stub.
type mockTriggerRepo struct {
	triggers []models.Trigger
	err      error
}

func (m *mockTriggerRepo) ListActiveTriggers() ([]models.Trigger, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.Trigger, len(m.triggers))
	copy(out, m.triggers)
	return out, nil
}

func TestResolveFirstTokenCaseInsensitive(t *testing.T) {
	repo := &mockTriggerRepo{triggers: []models.Trigger{
		{ID: "1", Keyword: "hello", FlowVersionRef: "welcome-v1", IsActive: true},
	}}
	r := NewTriggerResolver(repo)

	tests := []struct {
		text    string
		wantRef string
	}{
		{"hello", "welcome-v1"},
		{"HELLO there friend", "welcome-v1"},
		{"  hello\tworld", "welcome-v1"},
		{"say hello", ""},
		{"helloo", ""},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		trig, err := r.Resolve(tt.text)
		if err != nil {
			t.Fatalf("Resolve(%q): unexpected error: %v", tt.text, err)
		}
		if tt.wantRef == "" {
			if trig != nil {
				t.Errorf("Resolve(%q) = %+v, want nil", tt.text, trig)
			}
			continue
		}
		if trig == nil || trig.FlowVersionRef != tt.wantRef {
			t.Errorf("Resolve(%q) = %+v, want ref %q", tt.text, trig, tt.wantRef)
		}
	}
}

func TestResolveLowestPriorityWins(t *testing.T) {
	repo := &mockTriggerRepo{triggers: []models.Trigger{
		{ID: "high", Keyword: "menu", FlowVersionRef: "menu-v5", Priority: 5, IsActive: true},
		{ID: "low", Keyword: "menu", FlowVersionRef: "menu-v1", Priority: 1, IsActive: true},
	}}
	r := NewTriggerResolver(repo)

	trig, err := r.Resolve("menu please")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trig == nil || trig.ID != "low" {
		t.Errorf("expected priority 1 entry, got %+v", trig)
	}
}

func TestResolvePriorityTieBreaksOnRecency(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	repo := &mockTriggerRepo{triggers: []models.Trigger{
		{ID: "old", Keyword: "start", FlowVersionRef: "v1", Priority: 1, IsActive: true, CreatedAt: older},
		{ID: "new", Keyword: "start", FlowVersionRef: "v2", Priority: 1, IsActive: true, CreatedAt: newer},
	}}
	r := NewTriggerResolver(repo)

	trig, err := r.Resolve("start")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trig == nil || trig.ID != "new" {
		t.Errorf("expected most recent entry on priority tie, got %+v", trig)
	}
}

func TestResolveSkipsInactive(t *testing.T) {
	repo := &mockTriggerRepo{triggers: []models.Trigger{
		{ID: "1", Keyword: "hello", FlowVersionRef: "v1", IsActive: false},
	}}
	r := NewTriggerResolver(repo)
	trig, err := r.Resolve("hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trig != nil {
		t.Errorf("inactive trigger should not match, got %+v", trig)
	}
}

func TestResolvePropagatesStoreError(t *testing.T) {
	repo := &mockTriggerRepo{err: errors.New("db down")}
	r := NewTriggerResolver(repo)
	if _, err := r.Resolve("hello"); err == nil {
		t.Error("expected store error to propagate")
	}
}

func TestActiveKeywords(t *testing.T) {
	repo := &mockTriggerRepo{triggers: []models.Trigger{
		{ID: "1", Keyword: "Menu", Priority: 2, IsActive: true},
		{ID: "2", Keyword: "hello", Priority: 1, IsActive: true},
		{ID: "3", Keyword: "menu", Priority: 3, IsActive: true},
		{ID: "4", Keyword: "hidden", Priority: 0, IsActive: false},
	}}
	r := NewTriggerResolver(repo)

	keywords, err := r.ActiveKeywords()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"hello", "menu"}
	if !reflect.DeepEqual(keywords, want) {
		t.Errorf("ActiveKeywords() = %v, want %v", keywords, want)
	}
}
