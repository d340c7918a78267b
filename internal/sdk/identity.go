// Package sdk holds the process-wide partner/app identity every load needs.
package sdk

import (
	"errors"
	"strings"
	"sync"
)

var ErrEmptyIdentity = errors.New("partner id and app id must not be empty")

// Identity is set once by Configure at startup. Create one per process and
// pass it to every interstitial; tests use a fresh instance.
type Identity struct {
	mu        sync.RWMutex
	partnerID string
	appID     string
	set       bool
}

func NewIdentity() *Identity {
	return &Identity{}
}

// Configure records the identity. Calling it again replaces the previous
// values; nothing else ever resets them.
func (i *Identity) Configure(partnerID, appID string) error {
	partnerID, appID = strings.TrimSpace(partnerID), strings.TrimSpace(appID)
	if partnerID == "" || appID == "" {
		return ErrEmptyIdentity
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.partnerID, i.appID, i.set = partnerID, appID, true
	return nil
}

// Credentials reports ok=false until Configure succeeded.
func (i *Identity) Credentials() (partnerID, appID string, ok bool) {
	if i == nil {
		return "", "", false
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.partnerID, i.appID, i.set
}
