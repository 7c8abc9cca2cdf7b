package agent

import "context"

// Processor defines the remote agent operations.
// This interface is implemented by the gRPC client.
type Processor interface {
	// ReviewAnswer decides whether an answer completes the current question.
	ReviewAnswer(ctx context.Context, req AnswerReview) (Review, error)

	// TrackProgress estimates answered questions from the decrypted history.
	TrackProgress(ctx context.Context, req ProgressRequest) (ProgressResult, error)

	// Close releases resources
	Close()
}

// Ensure GrpcClient implements Processor.
var _ Processor = (*GrpcClient)(nil)
