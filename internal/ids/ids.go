// Package ids mints the typeids used for sessions, invocations and installer
// jobs.
package ids

import (
	"fmt"
	"strings"
	"time"

	"go.jetify.com/typeid"
)

const (
	PrefixSession    = "sess"
	PrefixInvocation = "inv"
	PrefixInstall    = "inst"
)

var generateTypeID = func(prefix string) (string, error) {
	id, err := typeid.WithPrefix(prefix)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func NewSessionID() string {
	return New(PrefixSession)
}

func NewInvocationID() string {
	return New(PrefixInvocation)
}

func NewInstallID() string {
	return New(PrefixInstall)
}

// New returns a typeid with prefix, or a timestamp id if generation fails.
func New(prefix string) string {
	id, err := generateTypeID(prefix)
	if err == nil && strings.TrimSpace(id) != "" {
		return id
	}

	return fmt.Sprintf("%s-%d", prefix, time.Now().UTC().UnixNano())
}

// HasPrefix reports whether id was minted with prefix.
func HasPrefix(id, prefix string) bool {
	parsed, err := typeid.FromString(id)
	if err == nil {
		return parsed.Prefix() == prefix
	}
	return strings.HasPrefix(id, prefix+"-")
}
