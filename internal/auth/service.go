package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iftv-ott/iftv_client/internal/identity"
	"github.com/iftv-ott/iftv_client/internal/logging"
	"github.com/iftv-ott/iftv_client/internal/notification"
	"github.com/iftv-ott/iftv_client/internal/session"
)

var (
	// ErrNoOtpSession means Login was called without a pending OTP request.
	ErrNoOtpSession = errors.New("no pending otp session, request a new otp")
	// ErrStaleOtpSession means the session id or mobile does not match the
	// latest OTP request.
	ErrStaleOtpSession = errors.New("otp session is stale, request a new otp")
	// ErrLoginInFlight means another login has not settled yet.
	ErrLoginInFlight = errors.New("a login is already in progress")
	// ErrNoSession means the operation needs a logged in session.
	ErrNoSession = errors.New("no token available")
	// ErrSessionChanged means the session was cleared or replaced while the
	// operation was waiting on the gateway; its result was discarded.
	ErrSessionChanged = errors.New("session changed while the request was in flight")
)

// Gateway is the remote identity service as seen by the controller.
type Gateway interface {
	RequestOtp(ctx context.Context, mobile string) (identity.OtpResult, error)
	VerifyOtp(ctx context.Context, mobile, otp, sessionID string) (identity.VerifyResult, error)
	FetchProfile(ctx context.Context, token string) (identity.ProfileResult, error)
}

// Publisher receives auth state after every transition. States arrive in
// transition order. A Publisher may call back into the Service; states caused
// by such calls are delivered after the current one returns.
type Publisher interface {
	Publish(state notification.AuthState)
}

// Options holds optional collaborators for NewService.
type Options struct {
	// Persister keeps the session across restarts. Nil keeps sessions in
	// memory only.
	Persister session.Persister
	Logger    *slog.Logger
	Now       func() time.Time
}

// Service is the session lifecycle controller and the only writer of the
// session store.
type Service struct {
	gateway   Gateway
	store     *session.Store
	publisher Publisher
	persister session.Persister
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	state     State
	pending   *identity.OtpSession
	loggingIn bool
	// epoch changes on every commit and logout so late gateway results can
	// tell that the session they were started for is gone.
	epoch uint64
	// rev changes on every store write; only the write holding the latest
	// rev reaches the persister.
	rev uint64
	// outbox holds snapshots not yet handed to the publisher; draining is set
	// while one goroutine is delivering them.
	outbox   []notification.AuthState
	draining bool

	persistMu sync.Mutex
}

// NewService wires the controller. publisher may be nil.
func NewService(gateway Gateway, store *session.Store, publisher Publisher, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		gateway:   gateway,
		store:     store,
		publisher: publisher,
		persister: opts.Persister,
		logger:    logger,
		now:       now,
		state:     LoggedOut,
	}
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PendingOtp returns the OTP session awaiting verification, if any.
func (s *Service) PendingOtp() (identity.OtpSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return identity.OtpSession{}, false
	}
	return *s.pending, true
}

// Session returns a copy of the committed session, or nil.
func (s *Service) Session() *session.Session {
	return s.store.Get()
}

// CheckAuth reports whether a usable session is committed.
func (s *Service) CheckAuth() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkAuthLocked()
}

// HoldsToken reports whether token belongs to the usable committed session.
func (s *Service) HoldsToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" || !s.checkAuthLocked() {
		return false
	}
	return s.store.Get().AuthToken == token
}

func (s *Service) checkAuthLocked() bool {
	if s.state != LoggedIn {
		return false
	}
	cur := s.store.Get()
	return cur != nil && cur.AuthToken != ""
}

// RequestOtp asks the gateway for an OTP and records the issued session,
// replacing any earlier one.
func (s *Service) RequestOtp(ctx context.Context, mobile string) (identity.OtpSession, error) {
	if err := identity.ValidateMobile(mobile); err != nil {
		return identity.OtpSession{}, err
	}

	res, err := s.gateway.RequestOtp(ctx, mobile)
	if err != nil {
		s.logger.Warn("otp request failed", slog.String("mobile", mobile), slog.Any("error", err))
		return identity.OtpSession{}, fmt.Errorf("request otp: %w", err)
	}
	if res.SessionID == "" {
		s.logger.Warn("otp request returned no session id", slog.String("mobile", mobile))
		return identity.OtpSession{}, identity.ErrMissingSessionID
	}

	otp := identity.OtpSession{MobileNumber: mobile, SessionID: res.SessionID, CreatedAt: s.now().UTC()}

	s.mu.Lock()
	s.pending = &otp
	if s.state == LoggedOut {
		s.state = AwaitingOtp
	}
	s.enqueueLocked(false)
	s.mu.Unlock()

	s.flush()
	return otp, nil
}

// Login verifies otp against the pending OTP session, hydrates the profile
// best-effort and commits a new session. The pending OTP session is consumed
// whatever the outcome. A login started while a session is committed keeps
// that session usable, and the state LoggedIn, until the new one commits.
func (s *Service) Login(ctx context.Context, mobile, otp, sessionID string) (session.Session, error) {
	if err := identity.ValidateMobile(mobile); err != nil {
		return session.Session{}, err
	}
	if err := identity.ValidateOtp(otp); err != nil {
		return session.Session{}, err
	}

	s.mu.Lock()
	if s.loggingIn {
		s.mu.Unlock()
		return session.Session{}, ErrLoginInFlight
	}
	if s.pending == nil {
		s.mu.Unlock()
		return session.Session{}, ErrNoOtpSession
	}
	if s.pending.SessionID != sessionID || s.pending.MobileNumber != mobile {
		s.mu.Unlock()
		return session.Session{}, ErrStaleOtpSession
	}
	s.pending = nil
	s.loggingIn = true
	if s.state != LoggedIn {
		s.state = Authenticating
	}
	epoch := s.epoch
	s.enqueueLocked(true)
	s.mu.Unlock()
	s.flush()

	verified, err := s.gateway.VerifyOtp(ctx, mobile, otp, sessionID)
	if err != nil {
		s.mu.Lock()
		s.loggingIn = false
		if s.epoch == epoch && s.state == Authenticating {
			s.state = AwaitingOtp
		}
		s.enqueueLocked(false)
		s.mu.Unlock()
		s.flush()

		s.logger.Warn("otp verification failed", slog.String("mobile", mobile), slog.Any("error", err))
		return session.Session{}, fmt.Errorf("verify otp: %w", err)
	}

	sess := session.Session{
		MobileNumber: mobile,
		AuthToken:    verified.Token,
		LoginTime:    s.now().UTC(),
	}
	if profile, err := s.gateway.FetchProfile(ctx, verified.Token); err != nil {
		s.logger.Warn("profile hydration failed, continuing with base fields",
			slog.String("mobile", mobile), slog.Any("error", err))
		sess.User = sess.BaseProfile()
	} else {
		sess.User = sess.BaseProfile().Merge(verified.User).Merge(profile.User)
	}

	s.mu.Lock()
	s.loggingIn = false
	if s.epoch != epoch {
		s.enqueueLocked(false)
		s.mu.Unlock()
		s.flush()
		s.logger.Info("login result discarded after logout", slog.String("mobile", mobile))
		return session.Session{}, ErrSessionChanged
	}
	s.store.Commit(sess)
	s.state = LoggedIn
	s.epoch++
	s.rev++
	rev := s.rev
	s.enqueueLocked(false)
	s.mu.Unlock()

	s.flush()
	s.persist(ctx, rev, &sess)

	s.logger.Info("logged in", slog.String("mobile", mobile), slog.String("token", logging.MaskToken(sess.AuthToken)))
	return sess, nil
}

// RefreshUser re-fetches the profile and merges it into the committed
// session. A failure leaves the session untouched.
func (s *Service) RefreshUser(ctx context.Context) error {
	s.mu.Lock()
	cur := s.store.Get()
	if cur == nil || cur.AuthToken == "" {
		s.mu.Unlock()
		return ErrNoSession
	}
	epoch := s.epoch
	s.mu.Unlock()

	profile, err := s.gateway.FetchProfile(ctx, cur.AuthToken)
	if err != nil {
		s.logger.Warn("profile refresh failed", slog.Any("error", err))
		return fmt.Errorf("refresh user: %w", err)
	}

	s.mu.Lock()
	if s.epoch != epoch || !s.store.MutateUser(profile.User) {
		s.mu.Unlock()
		return ErrSessionChanged
	}
	s.rev++
	rev := s.rev
	updated := s.store.Get()
	s.enqueueLocked(false)
	s.mu.Unlock()

	s.flush()
	s.persist(ctx, rev, updated)
	return nil
}

// Logout clears the session and any pending OTP. It is idempotent.
func (s *Service) Logout(ctx context.Context) {
	s.mu.Lock()
	s.store.Clear()
	s.pending = nil
	s.state = LoggedOut
	s.epoch++
	s.rev++
	rev := s.rev
	s.enqueueLocked(false)
	s.mu.Unlock()

	s.flush()
	s.persist(ctx, rev, nil)
	s.logger.Info("logged out")
}

// Start rehydrates the session at process startup. It loads the persisted
// session when a persister is configured, refreshes the profile best-effort
// and always ends by publishing loading=false.
func (s *Service) Start(ctx context.Context) {
	if s.persister != nil {
		sess, ok, err := s.persister.Load(ctx)
		switch {
		case err != nil:
			s.logger.Warn("load persisted session", slog.Any("error", err))
		case ok && sess.AuthToken != "":
			s.store.Commit(sess)
		}
	}

	s.mu.Lock()
	cur := s.store.Get()
	if cur == nil || cur.AuthToken == "" {
		s.enqueueLocked(false)
		s.mu.Unlock()
		s.flush()
		s.logger.Info("no stored session found")
		return
	}
	s.state = LoggedIn
	if cur.User == nil {
		s.store.MutateUser(cur.BaseProfile())
	}
	epoch := s.epoch
	s.mu.Unlock()

	profile, err := s.gateway.FetchProfile(ctx, cur.AuthToken)

	s.mu.Lock()
	var (
		rev     uint64
		updated *session.Session
	)
	if err != nil {
		s.logger.Warn("profile fetch on startup failed, using stored session", slog.Any("error", err))
	} else if s.epoch == epoch && s.store.MutateUser(profile.User) {
		s.rev++
		rev = s.rev
		updated = s.store.Get()
	}
	s.enqueueLocked(false)
	s.mu.Unlock()

	s.flush()
	if updated != nil {
		s.persist(ctx, rev, updated)
	}
	s.logger.Info("session restored", slog.String("mobile", cur.MobileNumber))
}

// persist writes sess, or deletes the stored copy when sess is nil, unless a
// later store write has happened since rev was taken; that write persists
// itself. It runs outside mu so slow stores never block readers.
func (s *Service) persist(ctx context.Context, rev uint64, sess *session.Session) {
	if s.persister == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	latest := s.rev == rev
	s.mu.Unlock()
	if !latest {
		return
	}

	if sess == nil {
		if err := s.persister.Delete(ctx); err != nil {
			s.logger.Error("delete persisted session", slog.Any("error", err))
		}
		return
	}
	if err := s.persister.Save(ctx, *sess); err != nil {
		s.logger.Error("persist session", slog.Any("error", err))
	}
}

func (s *Service) snapshotLocked(loading bool) notification.AuthState {
	state := notification.AuthState{Loading: loading, IsAuthenticated: s.checkAuthLocked()}
	if cur := s.store.Get(); cur != nil && state.IsAuthenticated {
		state.User = cur.User
	}
	return state
}

func (s *Service) enqueueLocked(loading bool) {
	if s.publisher == nil {
		return
	}
	s.outbox = append(s.outbox, s.snapshotLocked(loading))
}

// flush hands queued snapshots to the publisher in order. Only one goroutine
// delivers at a time; a flush that finds delivery in progress leaves its
// snapshot to the active drainer.
func (s *Service) flush() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.outbox) > 0 {
		next := s.outbox[0]
		s.outbox = s.outbox[1:]
		s.mu.Unlock()
		s.publisher.Publish(next)
		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}
