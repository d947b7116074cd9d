// Package session holds the per-browser (or per-request) state of the
// campaign manager: credentials, the latest campaign snapshot, the debug
// log and the view state of the dashboard.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/ccops/five9cm/internal/campaigns"
	"github.com/ccops/five9cm/internal/credentials"
	"golang.org/x/time/rate"
)

const (
	DefaultDebugLogLimit = 200
	DefaultRateLimit     = 1.0
	DefaultRateBurst     = 5
)

// ErrBusy is returned when the session already has an invocation in flight.
var ErrBusy = errors.New("another operation is already running for this session")

type Options struct {
	DebugLogLimit int
	RateLimit     float64
	RateBurst     int
	AutoRefresh   bool
}

func (o Options) withDefaults() Options {
	if o.DebugLogLimit <= 0 {
		o.DebugLogLimit = DefaultDebugLogLimit
	}
	if o.RateLimit <= 0 {
		o.RateLimit = DefaultRateLimit
	}
	if o.RateBurst <= 0 {
		o.RateBurst = DefaultRateBurst
	}
	return o
}

type FlashLevel string

const (
	FlashInfo    FlashLevel = "info"
	FlashSuccess FlashLevel = "success"
	FlashWarning FlashLevel = "warning"
	FlashError   FlashLevel = "error"
)

type Flash struct {
	Level FlashLevel
	Text  string
}

// View is the dashboard state that survives a redirect.
type View struct {
	Filter      campaigns.Filter
	Selected    []string
	Confirmed   bool
	AutoRefresh bool
}

type Session struct {
	ID          string
	CreatedAt   time.Time
	Credentials *credentials.Holder

	limiter *rate.Limiter
	busy    sync.Mutex

	mu          sync.Mutex
	snapshot    []campaigns.Campaign
	hasSnapshot bool
	fetchedAt   time.Time
	debug       []Entry
	debugLimit  int
	recorded    map[string]struct{}
	flashes     []Flash
	view        View
}

func New(id string, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		ID:          id,
		CreatedAt:   time.Now().UTC(),
		Credentials: &credentials.Holder{},
		limiter:     rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		debugLimit:  opts.DebugLogLimit,
		view: View{
			Filter:      campaigns.FilterRunning,
			AutoRefresh: opts.AutoRefresh,
		},
	}
}

// TryAcquire claims the session for one invocation. The returned func
// releases it.
func (s *Session) TryAcquire() (func(), error) {
	if !s.busy.TryLock() {
		return nil, ErrBusy
	}
	var once sync.Once
	return func() { once.Do(s.busy.Unlock) }, nil
}

// Reserve takes one token from the session limiter. When the request is not
// allowed yet it returns false and how long the caller should wait.
func (s *Session) Reserve() (bool, time.Duration) {
	r := s.limiter.Reserve()
	if !r.OK() {
		return false, time.Second
	}
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return false, delay
	}
	return true, 0
}

// SetSnapshot replaces the campaign snapshot wholesale.
func (s *Session) SetSnapshot(rows []campaigns.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = append([]campaigns.Campaign(nil), rows...)
	s.hasSnapshot = true
	s.fetchedAt = time.Now().UTC()
	s.view.Selected = pruneSelection(s.view.Selected, s.snapshot)
}

// ClearSnapshot drops the snapshot after a failed query.
func (s *Session) ClearSnapshot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	s.hasSnapshot = false
	s.fetchedAt = time.Time{}
	s.view.Selected = nil
}

// Snapshot returns a copy of the latest successful query, its time and
// whether one exists.
func (s *Session) Snapshot() ([]campaigns.Campaign, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]campaigns.Campaign(nil), s.snapshot...), s.fetchedAt, s.hasSnapshot
}

func (s *Session) AddFlash(level FlashLevel, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flashes = append(s.flashes, Flash{Level: level, Text: text})
}

// TakeFlashes returns pending flash messages and forgets them.
func (s *Session) TakeFlashes() []Flash {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.flashes
	s.flashes = nil
	return out
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.view
	v.Selected = append([]string(nil), s.view.Selected...)
	return v
}

func (s *Session) UpdateView(fn func(*View)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.view)
}

func pruneSelection(selected []string, snapshot []campaigns.Campaign) []string {
	if len(selected) == 0 {
		return nil
	}
	known := make(map[string]struct{}, len(snapshot))
	for _, c := range snapshot {
		known[c.ID] = struct{}{}
	}
	out := selected[:0:0]
	for _, id := range selected {
		if _, ok := known[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
