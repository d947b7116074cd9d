// Package credentials holds the Five9 username/password pair for one session.
package credentials

import (
	"strings"
	"sync"
)

// Credentials is a Five9 admin login. It never leaves process memory.
type Credentials struct {
	Username string
	Password string
}

// Complete reports whether both halves are present.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.Username) != "" && c.Password != ""
}

// String masks the password so the value is safe to log.
func (c Credentials) String() string {
	if c.Username == "" {
		return "(none)"
	}
	return c.Username + ":********"
}

// Holder keeps at most one Credentials value. When Remember is off the value
// is dropped by Release once the operation that needed it has finished.
type Holder struct {
	mu       sync.Mutex
	value    Credentials
	set      bool
	remember bool
}

func (h *Holder) Set(username, password string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.value = Credentials{Username: username, Password: password}
	h.set = true
}

func (h *Holder) Get() (Credentials, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.set {
		return Credentials{}, false
	}
	return h.value, true
}

func (h *Holder) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.value = Credentials{}
	h.set = false
}

func (h *Holder) SetRemember(remember bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remember = remember
}

func (h *Holder) Remember() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.remember
}

// Resolve picks the credentials for an operation: freshly typed values win and
// replace the held pair, otherwise the held pair is used.
func (h *Holder) Resolve(username, password string) (Credentials, bool) {
	typed := Credentials{Username: strings.TrimSpace(username), Password: password}
	if typed.Complete() {
		h.Set(typed.Username, typed.Password)
		return typed, true
	}
	held, ok := h.Get()
	if !ok || !held.Complete() {
		return Credentials{}, false
	}
	return held, true
}

// Release clears the held pair unless the session asked to keep it.
func (h *Holder) Release() {
	if h.Remember() {
		return
	}
	h.Clear()
}
