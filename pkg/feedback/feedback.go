// Package feedback records user ratings of research runs and summarizes
// them.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalid is returned for feedback that fails validation.
var ErrInvalid = errors.New("invalid feedback")

// Feedback is one user rating of a research answer.
type Feedback struct {
	ID            string    `json:"id"`
	OriginalQuery string    `json:"original_query"`
	FeedbackText  string    `json:"feedback_text"`
	Rating        int       `json:"rating"`
	Timestamp     time.Time `json:"timestamp"`
	SessionID     string    `json:"session_id,omitempty"`
}

// Store records and lists feedback.
type Store interface {
	Record(ctx context.Context, fb Feedback) (Feedback, error)
	All(ctx context.Context) ([]Feedback, error)
}

// prepare validates fb and fills the id and timestamp when absent.
func prepare(fb Feedback, now time.Time) (Feedback, error) {
	fb.OriginalQuery = strings.TrimSpace(fb.OriginalQuery)
	fb.FeedbackText = strings.TrimSpace(fb.FeedbackText)
	if fb.OriginalQuery == "" {
		return Feedback{}, fmt.Errorf("%w: original query is required", ErrInvalid)
	}
	if fb.Rating < 1 || fb.Rating > 5 {
		return Feedback{}, fmt.Errorf("%w: rating must be between 1 and 5, got %d", ErrInvalid, fb.Rating)
	}
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.Timestamp.IsZero() {
		fb.Timestamp = now.UTC()
	}
	return fb, nil
}
