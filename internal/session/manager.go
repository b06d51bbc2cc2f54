package session

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"merry/internal/cache"
	"merry/internal/document/model"
	"merry/internal/localstore"
	"merry/pkg/logger"
)

// Status is the authentication state exposed to the UI.
type Status int

const (
	StatusLoading Status = iota
	StatusSignedOut
	StatusSignedIn
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSignedIn:
		return "signed-in"
	default:
		return "signed-out"
	}
}

// ErrNotSignedIn is returned by operations that need an active session.
var ErrNotSignedIn = errors.New("not signed in")

// AuthResult is what the auth endpoints return: always a user, sometimes a
// session. Providers that require email verification issue the user record
// without tokens.
type AuthResult struct {
	User    *model.User
	Session *Session
}

// AuthAPI is the slice of the backend API the manager drives.
type AuthAPI interface {
	Signup(ctx context.Context, email, password, name string) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Logout(ctx context.Context) error
	Refresh(ctx context.Context, refreshToken string) (*AuthResult, error)
	Me(ctx context.Context) (*model.User, error)
}

// Manager orchestrates login, signup, logout and token refresh around the
// Store, and tracks the guest prompt counter for unauthenticated use.
type Manager struct {
	mu           sync.Mutex
	api          AuthAPI
	sessions     *Store
	disk         localstore.Store
	cache        *cache.Cache
	quota        int
	status       Status
	user         *model.User
	promptsUsed  int
	signupPrompt bool
	onChange     []func()
}

func NewManager(api AuthAPI, sessions *Store, disk localstore.Store, respCache *cache.Cache, quota int) *Manager {
	m := &Manager{
		api:      api,
		sessions: sessions,
		disk:     disk,
		cache:    respCache,
		quota:    quota,
		status:   StatusLoading,
	}
	sessions.OnRefresh(func() {
		if err := m.Refresh(context.Background()); err != nil {
			logger.Sugar.Errorf("Scheduled token refresh failed: %v", err)
		}
	})
	return m
}

// OnChange registers a callback invoked after every auth state transition.
func (m *Manager) OnChange(fn func()) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}

// Status returns the current auth state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// CurrentUser returns the signed-in (or pending-verification) user, or nil.
func (m *Manager) CurrentUser() *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// Bootstrap restores persisted state on process start. A valid session is
// verified against /auth/me; an expired or rejected one goes through the
// refresh path before the client gives up on it.
func (m *Manager) Bootstrap(ctx context.Context) {
	m.loadGuestCounter()

	sess, err := m.sessions.Load()
	if err != nil || sess == nil {
		m.transition(StatusSignedOut, nil)
		return
	}

	if sess.ExpiredAt(m.sessions.clock.Now()) {
		if err := m.Refresh(ctx); err != nil {
			logger.Sugar.Infof("Stored session could not be refreshed: %v", err)
		}
		return
	}

	// Attach the token first so /auth/me carries it.
	if err := m.sessions.Set(sess); err != nil {
		logger.Sugar.Errorf("Failed to persist restored session: %v", err)
	}
	user, err := m.api.Me(ctx)
	if err == nil {
		m.transition(StatusSignedIn, user)
		return
	}
	// The server disagreed with our local clock; try the refresh token before
	// signing out.
	if err := m.Refresh(ctx); err != nil {
		logger.Sugar.Infof("Stored session rejected and refresh failed: %v", err)
	}
}

// Refresh exchanges the refresh token for a new session. Failure is terminal:
// the session is cleared and the user signed out. The underlying call is never
// retried by the transport; masking a refresh failure behind retries would
// only delay the forced sign-out.
func (m *Manager) Refresh(ctx context.Context) error {
	sess := m.sessions.Current()
	if sess == nil {
		if sess, _ = m.sessions.Load(); sess == nil {
			m.forceSignOut()
			return ErrNotSignedIn
		}
	}
	if sess.RefreshToken == "" {
		m.forceSignOut()
		return ErrNotSignedIn
	}

	res, err := m.api.Refresh(ctx, sess.RefreshToken)
	if err != nil || res.Session == nil {
		m.forceSignOut()
		if err == nil {
			err = errors.New("refresh returned no session")
		}
		return err
	}

	if err := m.sessions.Set(res.Session); err != nil {
		logger.Sugar.Errorf("Failed to persist refreshed session: %v", err)
	}
	m.transition(StatusSignedIn, res.User)
	return nil
}

// Login authenticates and stores the returned session. The user is recorded
// even when no session comes back. A successful login resets the guest
// counter.
func (m *Manager) Login(ctx context.Context, email, password string) (*model.User, error) {
	res, err := m.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	m.adoptAuthResult(res)
	return res.User, nil
}

// Signup registers a new account. Behaves like Login with respect to session
// handling and the guest counter.
func (m *Manager) Signup(ctx context.Context, email, password, name string) (*model.User, error) {
	res, err := m.api.Signup(ctx, email, password, name)
	if err != nil {
		return nil, err
	}
	m.adoptAuthResult(res)
	return res.User, nil
}

func (m *Manager) adoptAuthResult(res *AuthResult) {
	if res.Session != nil {
		if err := m.sessions.Set(res.Session); err != nil {
			logger.Sugar.Errorf("Failed to persist session: %v", err)
		}
	}
	m.resetGuestCounter()
	if res.Session != nil {
		m.transition(StatusSignedIn, res.User)
	} else {
		// Email verification pending: the account exists but cannot be used
		// yet.
		m.transition(StatusSignedOut, res.User)
	}
}

// Logout signs out. The backend call is best-effort; local state is cleared no
// matter what.
func (m *Manager) Logout(ctx context.Context) {
	if m.sessions.Token() != "" {
		if err := m.api.Logout(ctx); err != nil {
			logger.Sugar.Infof("Logout request failed, clearing local session anyway: %v", err)
		}
	}
	m.forceSignOut()
}

func (m *Manager) forceSignOut() {
	if err := m.sessions.Clear(); err != nil {
		logger.Sugar.Errorf("Failed to clear session: %v", err)
	}
	m.cache.Invalidate()
	m.transition(StatusSignedOut, nil)
}

func (m *Manager) transition(status Status, user *model.User) {
	m.mu.Lock()
	m.status = status
	m.user = user
	callbacks := append(([]func())(nil), m.onChange...)
	m.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// --- guest prompt quota ---

// CanUsePrompt reports whether a generation may run: signed-in users always
// may, guests until the free quota is spent. Pure query, no side effects.
func (m *Manager) CanUsePrompt() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == StatusSignedIn || m.promptsUsed < m.quota
}

// PromptsUsed returns the guest generation count.
func (m *Manager) PromptsUsed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.promptsUsed
}

// ShouldPromptSignup reports whether the quota has been exhausted and the UI
// should push the user towards creating an account.
func (m *Manager) ShouldPromptSignup() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signupPrompt
}

// RecordPromptUse increments the guest counter after a generation. Signed-in
// users are not counted.
func (m *Manager) RecordPromptUse() {
	m.mu.Lock()
	if m.status == StatusSignedIn {
		m.mu.Unlock()
		return
	}
	m.promptsUsed++
	if m.promptsUsed >= m.quota {
		m.signupPrompt = true
	}
	used := m.promptsUsed
	m.mu.Unlock()
	if err := m.disk.Set(localstore.KeyGuestPrompts, strconv.Itoa(used)); err != nil {
		logger.Sugar.Errorf("Failed to persist guest prompt counter: %v", err)
	}
}

func (m *Manager) loadGuestCounter() {
	raw, ok, err := m.disk.Get(localstore.KeyGuestPrompts)
	if err != nil || !ok {
		return
	}
	used, err := strconv.Atoi(raw)
	if err != nil || used < 0 {
		_ = m.disk.Delete(localstore.KeyGuestPrompts)
		return
	}
	m.mu.Lock()
	m.promptsUsed = used
	m.signupPrompt = used >= m.quota
	m.mu.Unlock()
}

func (m *Manager) resetGuestCounter() {
	m.mu.Lock()
	m.promptsUsed = 0
	m.signupPrompt = false
	m.mu.Unlock()
	if err := m.disk.Delete(localstore.KeyGuestPrompts); err != nil {
		logger.Sugar.Errorf("Failed to clear guest prompt counter: %v", err)
	}
}
