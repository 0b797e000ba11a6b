package session

import (
	"fmt"
	"regexp"
	"sync"
	"time"
)

const idLayout = "20060102_150405"

var idPattern = regexp.MustCompile(`^\d{8}_\d{6}_\d{6}$`)

// IDSource hands out session ids of the form YYYYMMDD_HHMMSS_ffffff (UTC,
// microseconds). Ids from one source are strictly increasing: when the clock
// has not moved past the last id, the next one is bumped by a microsecond.
type IDSource struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// DefaultIDs is shared by every store of the process.
var DefaultIDs = NewIDSource()

// NewIDSource returns a source backed by the wall clock.
func NewIDSource() *IDSource {
	return &IDSource{now: time.Now}
}

// Next returns a new id.
func (s *IDSource) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now
	if s.now != nil {
		now = s.now
	}
	t := now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return FormatID(t)
}

// FormatID renders t as a session id.
func FormatID(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s_%06d", t.Format(idLayout), t.Nanosecond()/int(time.Microsecond))
}

// ParseID returns the time encoded in a session id.
func ParseID(id string) (time.Time, error) {
	if !ValidID(id) {
		return time.Time{}, fmt.Errorf("invalid session id %q", id)
	}
	t, err := time.ParseInLocation(idLayout, id[:15], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid session id %q: %w", id, err)
	}
	var micros int
	if _, err := fmt.Sscanf(id[16:], "%06d", &micros); err != nil {
		return time.Time{}, fmt.Errorf("invalid session id %q: %w", id, err)
	}
	return t.Add(time.Duration(micros) * time.Microsecond), nil
}

// ValidID reports whether id has the session id shape.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}
