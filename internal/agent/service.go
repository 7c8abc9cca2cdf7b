package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/alexi/internal/history"
	"github.com/ashureev/alexi/internal/progression"
)

var (
	// ErrAgentUnavailable is returned when no agent is configured or the
	// agent call failed.
	ErrAgentUnavailable = errors.New("agent unavailable")
	// ErrNoHistory is returned by TrackProgress when the user has no history.
	ErrNoHistory = errors.New("no message history")
)

// Service drives conversational turns: it asks the agent to review answers
// and moves the user through the catalog.
type Service struct {
	processor Processor
	engine    *progression.Engine
	history   *history.Reader
	logger    *slog.Logger
}

// NewService creates an agent service. processor may be nil, in which case
// every answer is accepted and progress tracking is unavailable.
func NewService(processor Processor, engine *progression.Engine, reader *history.Reader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{processor: processor, engine: engine, history: reader, logger: logger}
}

// Enabled reports whether a remote agent is configured.
func (s *Service) Enabled() bool {
	return s.processor != nil
}

// Respond handles the user's answer to their current question. An empty
// answer, a user who has not started, or a missing agent advances directly.
// Otherwise the agent reviews the answer: complete answers advance, and
// incomplete ones yield a follow-up without changing state.
//
// The advance is conditioned on the document the answer was reviewed
// against, so a concurrent answer that moved the user on in the meantime
// makes this one fail with store.ErrVersionConflict.
func (s *Service) Respond(ctx context.Context, userID, answer string) (Turn, error) {
	answer = strings.TrimSpace(answer)

	cur, err := s.engine.ReadCursor(ctx, userID)
	if err != nil {
		return Turn{}, err
	}

	if current := cur.Pointer; current != nil && answer != "" && s.processor != nil {
		review, err := s.processor.ReviewAnswer(ctx, AnswerReview{
			UserID:   userID,
			Theme:    current.Theme,
			Question: current.Text,
			Answer:   answer,
		})
		if err != nil {
			return Turn{}, fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
		}
		if !review.Complete {
			s.logger.Info("Answer needs follow-up", "user_id", userID, "theme", current.Theme, "index", current.Index)
			return Turn{Kind: TurnFollowUp, Question: current, FollowUp: review.FollowUp}, nil
		}
	}

	next, err := s.engine.NextQuestionFrom(ctx, userID, cur)
	if err != nil {
		return Turn{}, err
	}
	if next == nil {
		return Turn{Kind: TurnExhausted}, nil
	}
	return Turn{Kind: TurnQuestion, Question: next}, nil
}

// TrackProgress sends the decrypted history to the agent and persists the
// number of answered questions it reports. A count outside the catalog's
// range is bad upstream data and is reported as ErrAgentUnavailable.
func (s *Service) TrackProgress(ctx context.Context, userID string) (ProgressResult, error) {
	if s.processor == nil {
		return ProgressResult{}, ErrAgentUnavailable
	}

	h, err := s.history.MessageHistory(ctx, userID)
	if err != nil {
		return ProgressResult{}, err
	}
	if h == nil || len(h.Entries) == 0 {
		return ProgressResult{}, ErrNoHistory
	}

	result, err := s.processor.TrackProgress(ctx, ProgressRequest{
		UserID:    userID,
		Questions: s.engine.Catalog().Snapshot(),
		History:   h.Values(),
	})
	if err != nil {
		return ProgressResult{}, fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}

	count := result.Answered()
	if total := s.engine.Catalog().TotalQuestions(); count < 0 || count > total {
		s.logger.Warn("Agent reported invalid progress", "user_id", userID, "answered", count, "total", total)
		return ProgressResult{}, fmt.Errorf("%w: answered count %d outside [0, %d]", ErrAgentUnavailable, count, total)
	}
	result.Count = count

	if err := s.engine.UpdateProgress(ctx, userID, count); err != nil {
		return ProgressResult{}, err
	}
	s.logger.Info("Tracked progress", "user_id", userID, "answered", count)
	return result, nil
}

// Close releases resources.
func (s *Service) Close() {
	if s.processor != nil {
		s.processor.Close()
	}
}
