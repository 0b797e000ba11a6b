// Package session persists completed research runs.
package session

import (
	"context"
	"time"

	"github.com/mikeboe/research-advisor/pkg/research"
)

// Record is a saved run: the final state plus when it was saved.
type Record struct {
	ID        string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	research.ResearchState
}

// Info is the listing view of a record.
type Info struct {
	ID            string    `json:"session_id"`
	OriginalQuery string    `json:"original_query"`
	Timestamp     time.Time `json:"timestamp"`
	Failed        bool      `json:"failed"`
}

// Store saves and reads sessions. Save implements research.Persister.
type Store interface {
	Save(ctx context.Context, state research.ResearchState) (string, error)
	Load(ctx context.Context, id string) (Record, error)
	List(ctx context.Context) ([]Info, error)
}

func (r Record) info() Info {
	return Info{
		ID:            r.ID,
		OriginalQuery: r.OriginalQuery,
		Timestamp:     r.Timestamp,
		Failed:        r.Error != "",
	}
}

// maxIDAttempts bounds how often Save draws a new id after a collision.
const maxIDAttempts = 5
