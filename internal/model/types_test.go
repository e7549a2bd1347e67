package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSnapshot_Len(t *testing.T) {
	s := Snapshot{
		Players: []PlayerState{
			{ID: "alice", Position: Position{X: 1, Z: 2}},
			{ID: "bob", Position: Position{X: 3, Y: 64, Z: 4}},
		},
		Version: 7,
		TakenAt: time.Now(),
	}

	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if (Snapshot{}).Len() != 0 {
		t.Error("empty snapshot should have length 0")
	}
}

func TestPresenceEvent(t *testing.T) {
	id := uuid.New()
	e := PresenceEvent{
		SessionID: id,
		PlayerID:  "alice",
		Kind:      PresenceDisconnect,
		Reason:    "transport closed",
		Duration:  90 * time.Second,
	}

	if e.SessionID != id {
		t.Errorf("SessionID = %v, want %v", e.SessionID, id)
	}
	if e.Kind != "disconnect" {
		t.Errorf("Kind = %q, want %q", e.Kind, "disconnect")
	}
}
