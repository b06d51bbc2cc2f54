package session

import (
	"encoding/json"
	"sync"
	"time"

	"merry/internal/localstore"
	"merry/pkg/logger"

	"github.com/benbjohnson/clock"
)

// Store owns the current Session. It mirrors the session to durable storage,
// hands the access token to the transport layer, and keeps at most one
// proactive refresh timer armed at any time.
type Store struct {
	mu        sync.Mutex
	disk      localstore.Store
	clock     clock.Clock
	margin    time.Duration
	session   *Session
	timer     *clock.Timer
	onRefresh func()
}

func NewStore(disk localstore.Store, clk clock.Clock, margin time.Duration) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{disk: disk, clock: clk, margin: margin}
}

// OnRefresh registers the callback fired when a proactive refresh is due.
// Must be set before any session is stored.
func (s *Store) OnRefresh(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRefresh = fn
}

// Token implements transport.TokenSource. It is read per request, so a token
// swapped in by a concurrent refresh is picked up immediately.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.AccessToken
}

// Current returns a copy of the stored session, or nil.
func (s *Store) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

// Load reads the persisted session record. A record that fails to decode is
// deleted and treated as absent.
func (s *Store) Load() (*Session, error) {
	raw, ok, err := s.disk.Get(localstore.KeySession)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		logger.Sugar.Warnf("Discarding undecodable session record: %v", err)
		_ = s.disk.Delete(localstore.KeySession)
		return nil, nil
	}
	return &sess, nil
}

// Set replaces the in-memory and persisted session and re-arms the proactive
// refresh timer.
func (s *Store) Set(sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.session = sess
	s.scheduleLocked(sess)
	s.mu.Unlock()
	return s.disk.Set(localstore.KeySession, string(raw))
}

// Clear disarms the refresh timer and wipes the session from memory and disk.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.session = nil
	s.stopTimerLocked()
	s.mu.Unlock()
	return s.disk.Delete(localstore.KeySession)
}

// scheduleLocked arms a one-shot timer to refresh the session ahead of its
// expiry. A session already inside the refresh margin triggers an immediate
// asynchronous refresh instead.
func (s *Store) scheduleLocked(sess *Session) {
	s.stopTimerLocked()
	if s.onRefresh == nil {
		return
	}
	exp := sess.Expiry()
	if exp.IsZero() {
		// Nothing to schedule against; a 401 will trigger a reactive refresh.
		return
	}
	delay := exp.Sub(s.clock.Now()) - s.margin
	if delay <= 0 {
		go s.onRefresh()
		return
	}
	logger.Sugar.Infof("Scheduling token refresh in %s", delay)
	s.timer = s.clock.AfterFunc(delay, s.onRefresh)
}

func (s *Store) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
