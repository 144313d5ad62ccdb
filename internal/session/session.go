// Package session holds the process-wide authentication state: the bearer credential and the
// identity it resolved to.
//
// The [Store] persists the credential through a [CredentialStore], notifies listeners
// synchronously on every change, and is the [services.Credentials] source for the API client.
// Listeners run on the goroutine that caused the change, after the store's lock is released.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/services"
	"github.com/desertthunder/vidx/internal/shared"
)

// DefaultProfile is the credential profile used when none is configured.
const DefaultProfile = "default"

// CredentialStore persists the single credential of a profile.
type CredentialStore interface {
	Load(profile string) (*models.Credential, error)
	Save(c *models.Credential) error
	Delete(profile string) error
}

// AuthAPI is the subset of the dashboard client the store drives.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	Register(ctx context.Context, input services.RegisterInput) (*services.AuthResult, error)
	Me(ctx context.Context) (*models.Identity, error)
	UpdateProfile(ctx context.Context, update services.ProfileUpdate) (*models.Identity, error)
}

// Reason tells listeners why the session changed.
type Reason string

const (
	ReasonRestored    Reason = "restored"
	ReasonLogin       Reason = "login"
	ReasonRegister    Reason = "register"
	ReasonProfile     Reason = "profile"
	ReasonLogout      Reason = "logout"
	ReasonInvalidated Reason = "invalidated"
)

// Snapshot is the session state delivered to listeners.
//
// Identity is non-nil only when Credential is non-empty.
type Snapshot struct {
	Credential string
	Identity   *models.Identity
	Reason     Reason

	// Unverified is set while the identity comes from the local cache because the server
	// could not be reached to confirm it. Any successful identity fetch clears it.
	Unverified bool
}

// Authenticated reports whether the snapshot carries a usable credential.
func (s Snapshot) Authenticated() bool { return s.Credential != "" }

// Listener observes session changes.
type Listener func(Snapshot)

// Store is the session state machine.
type Store struct {
	api     AuthAPI
	repo    CredentialStore
	profile string
	logger  *log.Logger
	now     func() time.Time

	mu         sync.Mutex
	credential string
	identity   *models.Identity
	unverified bool
	listeners  map[int]Listener
	nextID     int
	disposed   bool
}

// Option configures a [Store].
type Option func(*Store)

// WithProfile selects the credential profile.
func WithProfile(profile string) Option {
	return func(s *Store) { s.profile = profile }
}

// WithLogger sets the store's logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = shared.WithLogger(l, "component", "session") }
}

// WithClock overrides the time source used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty, unauthenticated store. Call [Store.Init] to restore a persisted credential.
func NewStore(api AuthAPI, repo CredentialStore, opts ...Option) *Store {
	s := &Store{
		api:       api,
		repo:      repo,
		profile:   DefaultProfile,
		logger:    shared.NewLogger(io.Discard),
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init restores the persisted credential and re-validates it against the server.
//
// A credential whose JWT exp claim has passed, or that the server rejects, is torn down the
// same way [Store.Logout] does and Init returns nil with the store logged out. Transport and
// server failures keep the credential and its cached identity so commands can still try;
// the session then reports [Snapshot.Unverified] until an identity fetch succeeds.
func (s *Store) Init(ctx context.Context) error {
	stored, err := s.repo.Load(s.profile)
	if errors.Is(err, shared.ErrNoCredential) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load credential: %w", err)
	}

	if services.TokenExpired(stored.Token, s.now()) {
		s.logger.Info("stored credential expired")
		s.forget()
		return nil
	}

	s.mu.Lock()
	s.credential = stored.Token
	s.identity = stored.Identity
	s.unverified = true
	s.mu.Unlock()

	identity, err := s.api.Me(ctx)
	switch {
	case err == nil:
		return s.establish(stored.Token, identity, ReasonRestored)
	case errors.Is(err, shared.ErrTransport), errors.Is(err, shared.ErrServer):
		if stored.Identity == nil {
			s.teardown(stored.Token, ReasonInvalidated)
			return fmt.Errorf("could not resolve stored credential: %w", err)
		}
		s.logger.Warn("could not re-validate credential, using cached identity", "error", err)
		s.notify(Snapshot{Credential: stored.Token, Identity: stored.Identity, Reason: ReasonRestored, Unverified: true})
		return nil
	default:
		s.logger.Info("stored credential rejected", "error", err)
		s.teardown(stored.Token, ReasonInvalidated)
		s.forget()
		return nil
	}
}

// Login authenticates with the server and establishes the session.
//
// The credential is persisted and every listener has observed it before Login returns.
func (s *Store) Login(ctx context.Context, email, password string) (*models.Identity, error) {
	res, err := s.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.establish(res.Token, &res.User, ReasonLogin); err != nil {
		return nil, err
	}
	return s.CurrentIdentity(), nil
}

// Register creates an account and establishes the session the same way as [Store.Login].
func (s *Store) Register(ctx context.Context, input services.RegisterInput) (*models.Identity, error) {
	res, err := s.api.Register(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := s.establish(res.Token, &res.User, ReasonRegister); err != nil {
		return nil, err
	}
	return s.CurrentIdentity(), nil
}

// Refresh re-fetches the identity of the current credential.
func (s *Store) Refresh(ctx context.Context) (*models.Identity, error) {
	credential := s.Credential()
	if credential == "" {
		return nil, shared.ErrNotAuthenticated
	}

	identity, err := s.api.Me(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.replaceIdentity(credential, identity, ReasonProfile); err != nil {
		return nil, err
	}
	return s.CurrentIdentity(), nil
}

// UpdateProfile edits the caller's profile and refreshes the cached identity.
func (s *Store) UpdateProfile(ctx context.Context, update services.ProfileUpdate) (*models.Identity, error) {
	credential := s.Credential()
	if credential == "" {
		return nil, shared.ErrNotAuthenticated
	}

	identity, err := s.api.UpdateProfile(ctx, update)
	if err != nil {
		return nil, err
	}
	if err := s.replaceIdentity(credential, identity, ReasonProfile); err != nil {
		return nil, err
	}
	return s.CurrentIdentity(), nil
}

// Logout clears the credential and identity. Calling it while logged out is a no-op apart
// from removing any stored credential.
func (s *Store) Logout() {
	if !s.teardown(s.Credential(), ReasonLogout) {
		s.forget()
	}
}

// Invalidate tears the session down after the server rejected credential.
//
// It does nothing when credential is no longer the current one, so several failures of
// requests that carried the same credential produce a single teardown.
func (s *Store) Invalidate(credential string) {
	s.teardown(credential, ReasonInvalidated)
}

// Credential returns the current bearer token, or "" when logged out.
func (s *Store) Credential() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential
}

// CurrentIdentity returns a copy of the current identity, or nil when logged out.
func (s *Store) CurrentIdentity() *models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// Snapshot returns the current session state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Credential: s.credential, Unverified: s.unverified}
	if s.identity != nil {
		id := *s.identity
		snap.Identity = &id
	}
	return snap
}

// OnChange registers a listener for session changes. The returned disposer removes it.
func (s *Store) OnChange(fn Listener) models.Disposer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return func() {}
	}

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
		})
	}
}

// Dispose drops every listener. The persisted credential is left in place.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	clear(s.listeners)
}

// establish persists credential with identity, installs it and notifies listeners.
func (s *Store) establish(credential string, identity *models.Identity, reason Reason) error {
	if credential == "" {
		return fmt.Errorf("%w: empty credential", shared.ErrAuth)
	}

	if err := s.repo.Save(models.NewCredential(s.profile, credential, identity)); err != nil {
		return fmt.Errorf("failed to persist credential: %w", err)
	}

	s.mu.Lock()
	s.credential = credential
	s.identity = identity
	s.unverified = false
	s.mu.Unlock()

	s.logger.Info("session established", "reason", reason, "user", identity.DisplayName())
	s.notify(Snapshot{Credential: credential, Identity: identity, Reason: reason})
	return nil
}

// replaceIdentity updates the identity of the still-current credential.
func (s *Store) replaceIdentity(credential string, identity *models.Identity, reason Reason) error {
	s.mu.Lock()
	if s.credential != credential {
		s.mu.Unlock()
		return shared.ErrNotAuthenticated
	}
	s.identity = identity
	s.unverified = false
	s.mu.Unlock()

	if err := s.repo.Save(models.NewCredential(s.profile, credential, identity)); err != nil {
		return fmt.Errorf("failed to persist credential: %w", err)
	}

	s.notify(Snapshot{Credential: credential, Identity: identity, Reason: reason})
	return nil
}

// teardown clears the session when credential is still the current one, removes it from
// storage and notifies listeners. It reports whether anything was cleared.
func (s *Store) teardown(credential string, reason Reason) bool {
	s.mu.Lock()
	if credential == "" || s.credential != credential {
		s.mu.Unlock()
		return false
	}
	s.credential = ""
	s.identity = nil
	s.unverified = false
	s.mu.Unlock()

	s.forget()
	s.logger.Info("session cleared", "reason", reason)
	s.notify(Snapshot{Reason: reason})
	return true
}

// forget removes the stored credential.
func (s *Store) forget() {
	if err := s.repo.Delete(s.profile); err != nil {
		s.logger.Error("failed to delete stored credential", "error", err)
	}
}

func (s *Store) notify(snap Snapshot) {
	s.mu.Lock()
	ids := slices.Sorted(maps.Keys(s.listeners))
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

var _ services.Credentials = (*Store)(nil)
