package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("  shortlisted ")
	if err != nil || s != StatusShortlisted {
		t.Fatalf("parse = %v, %v", s, err)
	}
	_, err = ParseStatus("FROZEN")
	var use UnknownStatusError
	if !errors.As(err, &use) || use.Raw != "FROZEN" {
		t.Fatalf("err = %v, want UnknownStatusError", err)
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusHired, StatusRejected} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusApplied, StatusReviewed, StatusShortlisted, StatusInterview, StatusOffer} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestActorJSON(t *testing.T) {
	b, err := json.Marshal(SystemActor())
	if err != nil || string(b) != `"system"` {
		t.Fatalf("system marshal = %s, %v", b, err)
	}
	b, err = json.Marshal(UserActor("u-1"))
	if err != nil || string(b) != `"u-1"` {
		t.Fatalf("user marshal = %s, %v", b, err)
	}

	var a Actor
	if err := json.Unmarshal([]byte(`"system"`), &a); err != nil || !a.IsSystem() {
		t.Fatalf("system unmarshal = %v, %v", a, err)
	}
	if err := json.Unmarshal([]byte(`"u-2"`), &a); err != nil {
		t.Fatalf("user unmarshal: %v", err)
	}
	if id, ok := a.UserID(); !ok || id != "u-2" {
		t.Fatalf("user id = %s, %v", id, ok)
	}
}
