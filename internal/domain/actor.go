package domain

import (
	"encoding/json"
	"strings"
)

// Actor identifies who performed an operation: a real user or the system
// itself (background jobs, unauthenticated callers). Persisted as a nullable
// column where NULL means system, so audit rows stay queryable without a
// magic "system" string.
type Actor struct {
	userID string
}

func UserActor(id string) Actor {
	return Actor{userID: strings.TrimSpace(id)}
}

func SystemActor() Actor { return Actor{} }

func (a Actor) IsSystem() bool { return a.userID == "" }

// UserID returns the user id and true for user actors.
func (a Actor) UserID() (string, bool) {
	return a.userID, a.userID != ""
}

func (a Actor) String() string {
	if a.userID == "" {
		return "system"
	}
	return a.userID
}

func (a Actor) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Actor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "system" {
		*a = SystemActor()
		return nil
	}
	*a = UserActor(s)
	return nil
}
