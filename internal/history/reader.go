// Package history reads a user's conversation history and decrypts the
// encrypted message payloads with the user's email-derived key.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ashureev/alexi/internal/secure"
	"github.com/ashureev/alexi/internal/store"
)

// Entry field names.
const (
	FieldEncryptedMessage = "encryptedMessage"
	FieldMessage          = "message"
)

// UndecryptableMessage replaces the message of an entry whose payload could
// not be decrypted.
const UndecryptableMessage = "[ENCRYPTED_DATA_COULD_NOT_DECRYPT]"

// Outcome records what happened to a single entry.
type Outcome int

const (
	// OutcomePlain means the entry carried no encrypted payload.
	OutcomePlain Outcome = iota
	// OutcomeDecrypted means the payload was decrypted into message.
	OutcomeDecrypted
	// OutcomeFailed means decryption failed and message holds the sentinel.
	OutcomeFailed
	// OutcomeSkipped means the entry was returned untouched because no
	// decryption key was available or the entry is not a mapping.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomePlain:
		return "plain"
	case OutcomeDecrypted:
		return "decrypted"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Entry is one history item. Fields is set for mapping entries, Raw for
// anything else; both serialise as the item itself.
type Entry struct {
	Fields  map[string]any
	Raw     any
	Outcome Outcome
	// Reason is set when Outcome is OutcomeFailed.
	Reason string
}

// Value returns the entry in document form.
func (e Entry) Value() any {
	if e.Fields != nil {
		return e.Fields
	}
	return e.Raw
}

// MarshalJSON encodes the entry as its document value.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Value())
}

// History is the decoded userHistory of one user, in stored order.
type History struct {
	UserID string `json:"user_id"`
	// Decrypted is false when the user has no email and entries were
	// returned as stored.
	Decrypted bool    `json:"decrypted"`
	Entries   []Entry `json:"entries"`
}

// Values returns the entries in document form.
func (h *History) Values() []any {
	if h == nil {
		return nil
	}
	out := make([]any, len(h.Entries))
	for i, e := range h.Entries {
		out[i] = e.Value()
	}
	return out
}

// Counts tallies entries by outcome.
func (h *History) Counts() map[Outcome]int {
	counts := make(map[Outcome]int)
	if h == nil {
		return counts
	}
	for _, e := range h.Entries {
		counts[e.Outcome]++
	}
	return counts
}

// Reader reads and decrypts user history.
type Reader struct {
	repo    store.Repository
	workers int
	logger  *slog.Logger
	decrypt func(envelope, secret string) (string, error)
}

// NewReader creates a history reader. workers bounds concurrent decryption;
// values below 1 use GOMAXPROCS.
func NewReader(repo store.Repository, workers int, logger *slog.Logger) *Reader {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{repo: repo, workers: workers, logger: logger, decrypt: secure.Decrypt}
}

// MessageHistory returns the user's history with encrypted messages
// decrypted. It returns nil, nil when the user has no record. A single
// undecryptable entry never fails the read.
func (r *Reader) MessageHistory(ctx context.Context, userID string) (*History, error) {
	user, err := r.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	if user == nil {
		return nil, nil
	}

	raw, _ := user.History()
	h := &History{UserID: userID, Entries: make([]Entry, len(raw))}
	if len(raw) == 0 {
		h.Decrypted = true
		return h, nil
	}

	email := user.Email()
	if email == "" {
		r.logger.Warn("User email missing, returning history without decryption", "user_id", userID)
		for i, item := range raw {
			h.Entries[i] = skipped(item)
		}
		r.observe(h)
		return h, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, item := range raw {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h.Entries[i] = r.decodeEntry(userID, item, email)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("decrypt history for %s: %w", userID, err)
	}

	h.Decrypted = true
	r.observe(h)
	return h, nil
}

func (r *Reader) decodeEntry(userID string, item any, email string) Entry {
	m, ok := item.(map[string]any)
	if !ok {
		return Entry{Raw: item, Outcome: OutcomeSkipped}
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != FieldEncryptedMessage {
			out[k] = v
		}
	}
	v, present := m[FieldEncryptedMessage]
	if !present {
		return Entry{Fields: out, Outcome: OutcomePlain}
	}
	if isEmpty(v) {
		out[FieldEncryptedMessage] = v
		return Entry{Fields: out, Outcome: OutcomePlain}
	}

	var reason string
	envelope, ok := v.(string)
	if !ok {
		reason = fmt.Sprintf("encrypted payload has type %T", v)
	} else if msg, err := r.decrypt(envelope, email); err != nil {
		reason = err.Error()
	} else {
		out[FieldMessage] = msg
		return Entry{Fields: out, Outcome: OutcomeDecrypted}
	}

	r.logger.Warn("Failed to decrypt history entry", "user_id", userID, "reason", reason)
	out[FieldMessage] = UndecryptableMessage
	return Entry{Fields: out, Outcome: OutcomeFailed, Reason: reason}
}

func (r *Reader) observe(h *History) {
	for outcome, n := range h.Counts() {
		entriesTotal.WithLabelValues(outcome.String()).Add(float64(n))
	}
}

func skipped(item any) Entry {
	if m, ok := item.(map[string]any); ok {
		return Entry{Fields: m, Outcome: OutcomeSkipped}
	}
	return Entry{Raw: item, Outcome: OutcomeSkipped}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
