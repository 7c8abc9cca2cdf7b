package progression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/alexi/internal/catalog"
	"github.com/ashureev/alexi/internal/domain"
	"github.com/ashureev/alexi/internal/store"
)

// ErrNegativeProgress is returned by UpdateProgress for counts below zero.
var ErrNegativeProgress = errors.New("progress count must be non-negative")

// Engine reads and advances users' question pointers. Each operation does at
// most one store read and one store write.
type Engine struct {
	catalog *catalog.Catalog
	repo    store.Repository
	logger  *slog.Logger
}

// NewEngine creates an engine over an immutable catalog snapshot.
func NewEngine(c *catalog.Catalog, repo store.Repository, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{catalog: c, repo: repo, logger: logger}
}

// Catalog returns the catalog the engine traverses.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// CurrentQuestion returns the user's stored pointer, or nil when the user has
// no record or has not started.
func (e *Engine) CurrentQuestion(ctx context.Context, userID string) (*domain.QuestionPointer, error) {
	user, err := e.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return user.CurrentQuestion(), nil
}

// Cursor is a user's stored pointer together with the document version it
// was read at. A nil Pointer means the user has not started.
type Cursor struct {
	Pointer *domain.QuestionPointer
	Version int64
}

// ReadCursor returns the user's pointer and the version it was read at. An
// absent user yields a zero Cursor.
func (e *Engine) ReadCursor(ctx context.Context, userID string) (Cursor, error) {
	user, err := e.repo.GetUser(ctx, userID)
	if err != nil {
		return Cursor{}, fmt.Errorf("get user %s: %w", userID, err)
	}
	if user == nil {
		return Cursor{}, nil
	}
	return Cursor{Pointer: user.CurrentQuestion(), Version: user.Version}, nil
}

// NextQuestion advances the user to the following question and persists the
// new pointer. It returns nil, nil when the catalog is exhausted or when the
// stored pointer no longer matches the catalog; nothing is written then.
//
// The write is conditioned on the document version that was read, so two
// concurrent advances from the same pointer cannot both succeed: the loser
// gets store.ErrVersionConflict.
func (e *Engine) NextQuestion(ctx context.Context, userID string) (*domain.QuestionPointer, error) {
	from, err := e.ReadCursor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.NextQuestionFrom(ctx, userID, from)
}

// NextQuestionFrom advances from a cursor the caller read earlier. The write
// fails with store.ErrVersionConflict if the document changed since then, so
// a caller that acted on from.Pointer never skips a question it did not see.
func (e *Engine) NextQuestionFrom(ctx context.Context, userID string, from Cursor) (*domain.QuestionPointer, error) {
	current := from.Pointer
	next, outcome := Advance(e.catalog, current)
	transitionTotal.WithLabelValues(outcome.String()).Inc()

	switch outcome {
	case OutcomeExhausted:
		e.logger.Info("All questions done", "user_id", userID)
		return nil, nil
	case OutcomeStaleTheme:
		e.logger.Warn("Stored question pointer not found in catalog",
			"user_id", userID,
			"theme", current.Theme,
			"index", current.Index,
		)
		return nil, nil
	}

	_, err := e.repo.MergeUser(ctx, userID, map[string]any{
		domain.FieldCurrentQuestion: next.Fields(),
	}, from.Version)
	recordWrite("next_question", err)
	if err != nil {
		return nil, fmt.Errorf("persist next question for %s: %w", userID, err)
	}

	e.logger.Info("Advanced user to next question",
		"user_id", userID,
		"theme", next.Theme,
		"index", next.Index,
	)
	return &next, nil
}

// SetCurrentQuestion jumps the user directly to (theme, index). An unknown
// theme or out-of-range index returns nil, nil without writing.
func (e *Engine) SetCurrentQuestion(ctx context.Context, userID, theme string, index int) (*domain.QuestionPointer, error) {
	p, ok := Locate(e.catalog, theme, index)
	if !ok {
		e.logger.Warn("Rejected question jump", "user_id", userID, "theme", theme, "index", index)
		return nil, nil
	}

	_, err := e.repo.MergeUser(ctx, userID, map[string]any{
		domain.FieldCurrentQuestion: p.Fields(),
	}, store.AnyVersion)
	recordWrite("set_question", err)
	if err != nil {
		return nil, fmt.Errorf("persist current question for %s: %w", userID, err)
	}

	e.logger.Info("Set current question", "user_id", userID, "theme", theme, "index", index)
	return &p, nil
}

// UpdateProgress persists count as the user's progress counter.
func (e *Engine) UpdateProgress(ctx context.Context, userID string, count int) error {
	if count < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeProgress, count)
	}
	_, err := e.repo.MergeUser(ctx, userID, map[string]any{
		domain.FieldProgress: count,
	}, store.AnyVersion)
	recordWrite("progress", err)
	if err != nil {
		return fmt.Errorf("persist progress for %s: %w", userID, err)
	}
	e.logger.Info("Updated progress", "user_id", userID, "progress", count)
	return nil
}

// Status summarises a user's position in the catalog.
type Status struct {
	Found          bool                    `json:"found"`
	Current        *domain.QuestionPointer `json:"current"`
	Progress       int                     `json:"progress"`
	TotalQuestions int                     `json:"total_questions"`
	// Remaining is the number of questions after the current one; it equals
	// TotalQuestions before the user starts.
	Remaining int `json:"remaining"`
}

// Status reads the user's pointer and progress in a single store read.
func (e *Engine) Status(ctx context.Context, userID string) (Status, error) {
	user, err := e.repo.GetUser(ctx, userID)
	if err != nil {
		return Status{}, fmt.Errorf("get user %s: %w", userID, err)
	}
	progress, _ := user.Progress()
	current := user.CurrentQuestion()
	total := e.catalog.TotalQuestions()
	remaining := total
	if current != nil {
		remaining = 0
		if pos, ok := Position(e.catalog, current); ok {
			remaining = total - pos - 1
		}
	}
	return Status{
		Found:          user != nil,
		Current:        current,
		Progress:       progress,
		TotalQuestions: total,
		Remaining:      remaining,
	}, nil
}
