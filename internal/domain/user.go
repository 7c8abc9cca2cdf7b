// Package domain contains core domain types for the companion backend.
package domain

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Document field names of a user record.
const (
	FieldEmail           = "email"
	FieldCurrentQuestion = "currentQuestion"
	FieldProgress        = "progress"
	FieldUserHistory     = "userHistory"
)

// User is a user record held by the state store. Fields is the raw document;
// the accessors below decode the parts the core understands.
type User struct {
	UserID    string         `json:"user_id"`
	Fields    map[string]any `json:"fields"`
	Version   int64          `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Email returns the trimmed email used as the per-user encryption secret.
func (u *User) Email() string {
	if u == nil {
		return ""
	}
	s, _ := u.Fields[FieldEmail].(string)
	return strings.TrimSpace(s)
}

// CurrentQuestion decodes the stored question pointer, or nil when absent or
// unreadable.
func (u *User) CurrentQuestion() *QuestionPointer {
	if u == nil {
		return nil
	}
	return PointerFromValue(u.Fields[FieldCurrentQuestion])
}

// Progress returns the stored progress counter.
func (u *User) Progress() (int, bool) {
	if u == nil {
		return 0, false
	}
	return AsInt(u.Fields[FieldProgress])
}

// History returns the raw userHistory entries and whether the field exists.
func (u *User) History() ([]any, bool) {
	if u == nil {
		return nil, false
	}
	raw, ok := u.Fields[FieldUserHistory]
	if !ok || raw == nil {
		return nil, false
	}
	switch v := raw.(type) {
	case []any:
		return v, true
	case []map[string]any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
	default:
		return nil, false
	}
}

// AsInt converts numeric document values (native ints, float64 from JSON,
// json.Number) to int. Non-integral floats are rejected.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
