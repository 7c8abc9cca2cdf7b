// Package agent connects the question engine to the remote conversational
// agent that reviews answers and estimates progress.
package agent

import (
	"github.com/ashureev/alexi/internal/catalog"
	"github.com/ashureev/alexi/internal/domain"
)

// AnswerReview asks the agent whether answer sufficiently covers question.
type AnswerReview struct {
	UserID   string `json:"user_id"`
	Theme    string `json:"theme"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Review is the agent's verdict on an answer.
type Review struct {
	Complete bool `json:"complete"`
	// FollowUp is the agent's next prompt when the answer is incomplete.
	FollowUp string `json:"follow_up,omitempty"`
}

// ProgressRequest asks the agent how many catalog questions the decrypted
// history has answered.
type ProgressRequest struct {
	UserID    string          `json:"user_id"`
	Questions []catalog.Theme `json:"questions"`
	History   []any           `json:"history"`
}

// ProgressResult is the agent's progress estimate: the catalog questions the
// history answers, in order. Agents that only report a number set Count.
type ProgressResult struct {
	AnsweredQuestions []string `json:"answered_questions"`
	Count             int      `json:"count"`
}

// Answered returns the answered-question count. The list wins when present.
func (r ProgressResult) Answered() int {
	if len(r.AnsweredQuestions) > 0 {
		return len(r.AnsweredQuestions)
	}
	return r.Count
}

// TurnKind categorizes the outcome of a conversational turn.
type TurnKind string

const (
	// TurnQuestion means the user was moved to a new question.
	TurnQuestion TurnKind = "question"
	// TurnFollowUp means the agent wants more on the current question.
	TurnFollowUp TurnKind = "follow_up"
	// TurnExhausted means there are no questions left.
	TurnExhausted TurnKind = "exhausted"
)

// Turn is the result of Service.Respond.
type Turn struct {
	Kind     TurnKind                `json:"kind"`
	Question *domain.QuestionPointer `json:"question,omitempty"`
	FollowUp string                  `json:"follow_up,omitempty"`
}
