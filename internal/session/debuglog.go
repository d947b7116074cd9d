package session

import (
	"context"
	"time"

	"github.com/ccops/five9cm/internal/ids"
	"github.com/ccops/five9cm/internal/pwsh"
)

// Entry is one raw interpreter invocation as shown in the debug console.
type Entry struct {
	ID        string        `json:"id"`
	Label     string        `json:"label"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	ExitCode  int           `json:"exit_code"`
	TimedOut  bool          `json:"timed_out,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Record appends e to the debug log, dropping the oldest entries past the
// retention limit.
func (s *Session) Record(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = ids.NewInvocationID()
	}
	s.debug = appendBounded(s.debug, e, s.debugLimit)
}

// RecordOnce records e unless an entry was already recorded under key.
func (s *Session) RecordOnce(key string, e Entry) bool {
	s.mu.Lock()
	if _, dup := s.recorded[key]; dup {
		s.mu.Unlock()
		return false
	}
	if s.recorded == nil {
		s.recorded = make(map[string]struct{})
	}
	s.recorded[key] = struct{}{}
	s.mu.Unlock()

	s.Record(e)
	return true
}

// DebugLog returns the retained entries, oldest first.
func (s *Session) DebugLog() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.debug...)
}

func (s *Session) LastEntry() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.debug) == 0 {
		return Entry{}, false
	}
	return s.debug[len(s.debug)-1], true
}

// Runner wraps inner so every invocation lands in the debug log.
func (s *Session) Runner(inner pwsh.Runner) pwsh.Runner {
	return pwsh.RunnerFunc(func(ctx context.Context, req pwsh.Request) (pwsh.Result, error) {
		started := time.Now().UTC()
		res, err := inner.Run(ctx, req)
		entry := Entry{
			ID:        ids.NewInvocationID(),
			Label:     req.Label,
			Stdout:    res.Stdout,
			Stderr:    res.Stderr,
			ExitCode:  res.ExitCode,
			TimedOut:  res.TimedOut,
			Truncated: res.Truncated,
			StartedAt: started,
			Duration:  res.Duration,
		}
		if entry.Duration == 0 {
			entry.Duration = time.Since(started)
		}
		if err != nil {
			entry.Error = err.Error()
		}
		s.Record(entry)
		return res, err
	})
}

func appendBounded[T any](history []T, item T, limit int) []T {
	if limit <= 0 {
		return nil
	}
	history = append(history, item)
	if len(history) <= limit {
		return history
	}
	trimmed := make([]T, limit)
	copy(trimmed, history[len(history)-limit:])
	return trimmed
}
