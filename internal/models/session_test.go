package models

import "testing"

func TestNewSession(t *testing.T) {
	sess := NewSession("15551234567")
	if sess.ID == "" {
		t.Error("expected generated session id")
	}
	if sess.Phone != "15551234567" {
		t.Errorf("unexpected phone: %q", sess.Phone)
	}
	if sess.Status != SessionStatusActive {
		t.Errorf("expected active status, got %q", sess.Status)
	}
	if sess.FlowVersionRef != "" || sess.CurrentScreenID != "" {
		t.Error("fresh session should not be bound to a flow")
	}
}

func TestSessionMergeContext(t *testing.T) {
	sess := NewSession("15551234567")
	sess.MergeContext(map[string]string{"name": "Ada"})
	sess.MergeContext(map[string]string{"color": "blue"})
	sess.MergeContext(map[string]string{"name": "Grace"})

	if len(sess.Context) != 2 {
		t.Fatalf("expected 2 context keys, got %d", len(sess.Context))
	}
	if sess.Context["name"] != "Grace" {
		t.Errorf("expected latest value to win, got %q", sess.Context["name"])
	}
	if sess.Context["color"] != "blue" {
		t.Errorf("expected existing key preserved, got %q", sess.Context["color"])
	}
}

func TestSessionEnd(t *testing.T) {
	tests := []struct {
		reason     string
		wantStatus SessionStatus
	}{
		{EndReasonFlowCompleted, SessionStatusCompleted},
		{EndReasonSessionExpired, SessionStatusEnded},
		{EndReasonAdminEnded, SessionStatusEnded},
	}
	for _, tt := range tests {
		sess := NewSession("15551234567")
		sess.End(tt.reason)
		if sess.Status != tt.wantStatus {
			t.Errorf("End(%q): expected status %q, got %q", tt.reason, tt.wantStatus, sess.Status)
		}
		if sess.EndedReason != tt.reason {
			t.Errorf("End(%q): expected reason recorded, got %q", tt.reason, sess.EndedReason)
		}
	}
}

func TestSessionAppendHistory(t *testing.T) {
	sess := NewSession("15551234567")
	sess.AppendHistory(HistoryEventTriggerMatched, "", map[string]string{"keyword": "hello"})
	sess.AppendHistory(HistoryEventScreenChanged, "ask_name", nil)

	if len(sess.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(sess.History))
	}
	if sess.History[0].Event != HistoryEventTriggerMatched {
		t.Errorf("unexpected first event: %q", sess.History[0].Event)
	}
	if sess.History[1].Screen != "ask_name" {
		t.Errorf("unexpected screen on second event: %q", sess.History[1].Screen)
	}
	if sess.History[0].ID == sess.History[1].ID {
		t.Error("history entries should have distinct ids")
	}
}
