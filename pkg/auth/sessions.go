package auth

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSessionTTL is how long an idle session keeps its provider.
const DefaultSessionTTL = 30 * time.Minute

const fingerprintPrefix = "config:"

type sessionEntry struct {
	provider    Provider
	fingerprint string
	lastSeen    time.Time
}

// SessionRegistry keeps one provider per HTTP session so that each session
// has its own token cache. Requests without a session id share a provider
// per distinct configuration.
type SessionRegistry struct {
	newProvider func(Configuration) Provider
	ttl         time.Duration
	now         func() time.Time
	logger      *zap.Logger

	mutex   sync.RWMutex
	entries map[string]*sessionEntry
}

// NewSessionRegistry creates a registry building providers with newProvider.
// A ttl of zero uses DefaultSessionTTL.
func NewSessionRegistry(newProvider func(Configuration) Provider, ttl time.Duration, logger *zap.Logger) *SessionRegistry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRegistry{
		newProvider: newProvider,
		ttl:         ttl,
		now:         time.Now,
		logger:      logger,
		entries:     make(map[string]*sessionEntry),
	}
}

// Provider returns the provider of a session, creating it on first use. A
// session whose resolved configuration changed gets a fresh provider.
func (r *SessionRegistry) Provider(sessionID string, cfg Configuration) Provider {
	fingerprint := cfg.Fingerprint()
	key := sessionID
	if key == "" {
		key = fingerprintPrefix + fingerprint
	}
	now := r.now()

	r.mutex.RLock()
	entry, ok := r.entries[key]
	r.mutex.RUnlock()
	if ok && entry.fingerprint == fingerprint {
		r.mutex.Lock()
		entry.lastSeen = now
		r.mutex.Unlock()
		return entry.provider
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if entry, ok := r.entries[key]; ok && entry.fingerprint == fingerprint {
		entry.lastSeen = now
		return entry.provider
	}
	entry = &sessionEntry{provider: r.newProvider(cfg), fingerprint: fingerprint, lastSeen: now}
	r.entries[key] = entry
	r.logger.Debug("Session provider created",
		zap.String("session", sessionID),
		zap.String("auth_mode", string(cfg.Mode())))
	return entry.provider
}

// Remove drops a session, e.g. when its MCP session is unregistered.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.entries, sessionID)
}

// Len is the number of live entries.
func (r *SessionRegistry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.entries)
}

// Sweep drops entries idle for longer than the TTL and returns how many went.
func (r *SessionRegistry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	r.mutex.Lock()
	defer r.mutex.Unlock()
	removed := 0
	for key, entry := range r.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (r *SessionRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("Idle sessions swept", zap.Int("removed", n))
			}
		}
	}
}
