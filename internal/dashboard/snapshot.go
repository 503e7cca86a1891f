// Package dashboard keeps the most recent window summary in memory and
// serves it over HTTP.
package dashboard

import "sync/atomic"

// Snapshot holds the latest summary body. Last writer wins; the consumer
// replaces the reference atomically and never mutates a stored body.
type Snapshot struct {
	v atomic.Value // []byte
}

func (s *Snapshot) Store(body []byte) {
	bodyCopy := make([]byte, len(body))
	copy(bodyCopy, body)
	s.v.Store(bodyCopy)
}

// Load returns the latest summary body, or ok=false before the first window.
func (s *Snapshot) Load() ([]byte, bool) {
	body, ok := s.v.Load().([]byte)
	return body, ok
}
