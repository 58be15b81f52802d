// Package auth is the account provider of the caption studio: email/password
// and identity-provider sign-in, server-side sessions, password reset and an
// auth-state-change subscription.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/infobmscommunity-ai/kohen-caption/internal/storage"
)

// JobPasswordResetEmail is the outbox job type carrying a reset link.
const JobPasswordResetEmail = "password_reset_email"

const minPasswordLength = 6

// Store is the persistence the auth provider needs.
type Store interface {
	CreateUser(ctx context.Context, u storage.User) (storage.User, error)
	GetUser(ctx context.Context, id string) (storage.User, error)
	GetUserByEmail(ctx context.Context, email string) (storage.User, error)
	UpdateUserProfile(ctx context.Context, id, displayName, photoURL string) error
	CreateSession(ctx context.Context, sess storage.Session) error
	GetSession(ctx context.Context, id string) (storage.Session, error)
	RevokeSession(ctx context.Context, id string) error
	CreatePasswordReset(ctx context.Context, r storage.PasswordReset) error
	GetPasswordReset(ctx context.Context, code string) (storage.PasswordReset, error)
	ConsumePasswordReset(ctx context.Context, code, passwordHash string, at time.Time) error
	EnqueueJob(ctx context.Context, job storage.Job) error
}

// Options configures a Service.
type Options struct {
	JWTSecret      []byte
	ProviderSecret []byte // empty disables SignInWithProvider
	SessionTTL     time.Duration
	ResetURL       string
	ResetTTL       time.Duration
	MaxFailures    int
	FailureWindow  time.Duration
	BcryptCost     int
	Now            func() time.Time
}

// ResetEmail is the payload of a password_reset_email job.
type ResetEmail struct {
	Email string `json:"email"`
	Link  string `json:"link"`
}

// Session is a signed-in user plus the bearer token identifying the session.
type Session struct {
	Token     string       `json:"token"`
	User      storage.User `json:"user"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// StateChange is delivered to subscribers. User is nil on sign-out.
type StateChange struct {
	UserID string
	User   *storage.User
}

type Service struct {
	store    Store
	opts     Options
	validate *validator.Validate
	failures *failureCounter

	mu        sync.Mutex
	nextSubID int
	listeners map[int]func(StateChange)
}

func NewService(store Store, opts Options) (*Service, error) {
	if len(opts.JWTSecret) == 0 {
		return nil, errors.New("auth: JWT secret is required")
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * 24 * time.Hour
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 5
	}
	if opts.FailureWindow <= 0 {
		opts.FailureWindow = 15 * time.Minute
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:     store,
		opts:      opts,
		validate:  validator.New(),
		failures:  newFailureCounter(opts.MaxFailures, opts.FailureWindow),
		listeners: make(map[int]func(StateChange)),
	}, nil
}

func (s *Service) now() time.Time {
	return s.opts.Now().UTC()
}

// SignUp registers an email/password account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return Session{}, err
	}
	if len(password) < minPasswordLength {
		return Session{}, authError(CodeWeakPassword)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("hashing password: %w", err)
	}

	u, err := s.store.CreateUser(ctx, storage.User{
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		Provider:     "password",
		PasswordHash: string(hash),
	})
	if errors.Is(err, storage.ErrEmailTaken) {
		return Session{}, authError(CodeEmailInUse)
	}
	if err != nil {
		return Session{}, persistenceError(err)
	}

	slog.Info("user registered", "user_id", u.ID)
	return s.startSession(ctx, u)
}

// SignIn checks an email/password pair.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return Session{}, err
	}
	if s.failures.blocked(email, s.now()) {
		slog.Warn("sign-in throttled", "email", email)
		return Session{}, authError(CodeTooManyRequests)
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		s.failures.record(email, s.now())
		return Session{}, authError(CodeUserNotFound)
	}
	if err != nil {
		return Session{}, persistenceError(err)
	}
	if u.PasswordHash == "" {
		// Provider-only account.
		s.failures.record(email, s.now())
		return Session{}, authError(CodeWrongPassword)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.failures.record(email, s.now())
		return Session{}, authErrorWrap(CodeWrongPassword, err)
	}

	s.failures.reset(email)
	return s.startSession(ctx, u)
}

// SignInWithProvider signs in with an identity-provider ID token, creating
// the account on first use.
func (s *Service) SignInWithProvider(ctx context.Context, idToken string) (Session, error) {
	if len(s.opts.ProviderSecret) == 0 {
		return Session{}, authError(CodeProviderDisabled)
	}
	claims, err := VerifyProviderToken(s.opts.ProviderSecret, idToken, s.opts.Now)
	if err != nil {
		return Session{}, authErrorWrap(CodeInvalidCredential, err)
	}
	email := normalizeEmail(claims.Email)
	if err := s.checkEmail(email); err != nil {
		return Session{}, err
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		provider := claims.Provider
		if provider == "" {
			provider = "google"
		}
		u, err = s.store.CreateUser(ctx, storage.User{
			Email:       email,
			DisplayName: claims.Name,
			PhotoURL:    claims.Picture,
			Provider:    provider,
		})
		if err != nil {
			return Session{}, persistenceError(err)
		}
		slog.Info("user registered via provider", "user_id", u.ID, "provider", provider)
	case err != nil:
		return Session{}, persistenceError(err)
	default:
		if (u.DisplayName == "" && claims.Name != "") || (u.PhotoURL == "" && claims.Picture != "") {
			if u.DisplayName == "" {
				u.DisplayName = claims.Name
			}
			if u.PhotoURL == "" {
				u.PhotoURL = claims.Picture
			}
			if err := s.store.UpdateUserProfile(ctx, u.ID, u.DisplayName, u.PhotoURL); err != nil {
				return Session{}, persistenceError(err)
			}
		}
	}

	return s.startSession(ctx, u)
}

// SignOut revokes the session behind token. Expired tokens can still be
// signed out.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := parseSession(s.opts.JWTSecret, token, s.opts.Now, false)
	if err != nil {
		return authErrorWrap(CodeInvalidSession, err)
	}
	if err := s.store.RevokeSession(ctx, claims.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return authErrorWrap(CodeInvalidSession, err)
		}
		return persistenceError(err)
	}
	slog.Info("user signed out", "user_id", claims.Subject)
	s.notify(StateChange{UserID: claims.Subject})
	return nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (storage.User, error) {
	claims, err := parseSession(s.opts.JWTSecret, token, s.opts.Now, true)
	if err != nil {
		return storage.User{}, authErrorWrap(CodeInvalidSession, err)
	}

	sess, err := s.store.GetSession(ctx, claims.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, authErrorWrap(CodeInvalidSession, err)
	}
	if err != nil {
		return storage.User{}, persistenceError(err)
	}
	if !sess.RevokedAt.IsZero() || !s.now().Before(sess.ExpiresAt) || sess.UserID != claims.Subject {
		return storage.User{}, authError(CodeInvalidSession)
	}

	u, err := s.store.GetUser(ctx, sess.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, authErrorWrap(CodeInvalidSession, err)
	}
	if err != nil {
		return storage.User{}, persistenceError(err)
	}
	return u, nil
}

// RequestPasswordReset issues a one-time code and queues the reset link for
// delivery.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return err
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return authError(CodeUserNotFound)
	}
	if err != nil {
		return persistenceError(err)
	}

	code := uuid.NewString()
	if err := s.store.CreatePasswordReset(ctx, storage.PasswordReset{
		Code:      code,
		UserID:    u.ID,
		ExpiresAt: s.now().Add(s.opts.ResetTTL),
	}); err != nil {
		return persistenceError(err)
	}

	link, err := resetLink(s.opts.ResetURL, code)
	if err != nil {
		return fmt.Errorf("building reset link: %w", err)
	}
	payload, err := json.Marshal(ResetEmail{Email: u.Email, Link: link})
	if err != nil {
		return fmt.Errorf("marshaling reset email: %w", err)
	}
	if err := s.store.EnqueueJob(ctx, storage.Job{
		Type:        JobPasswordResetEmail,
		PayloadJSON: string(payload),
	}); err != nil {
		return persistenceError(err)
	}

	slog.Info("password reset requested", "user_id", u.ID)
	return nil
}

// ConfirmPasswordReset sets a new password using a reset code.
func (s *Service) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return authError(CodeWeakPassword)
	}

	r, err := s.store.GetPasswordReset(ctx, strings.TrimSpace(code))
	if errors.Is(err, storage.ErrNotFound) {
		return authError(CodeInvalidActionCode)
	}
	if err != nil {
		return persistenceError(err)
	}
	if !r.UsedAt.IsZero() {
		return authError(CodeInvalidActionCode)
	}
	if !s.now().Before(r.ExpiresAt) {
		return authError(CodeExpiredActionCode)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.store.ConsumePasswordReset(ctx, r.Code, string(hash), s.now()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return authError(CodeInvalidActionCode)
		}
		return persistenceError(err)
	}
	slog.Info("password reset completed", "user_id", r.UserID)
	return nil
}

// Subscribe registers fn for auth-state changes. The returned func removes it.
func (s *Service) Subscribe(fn func(StateChange)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Service) notify(change StateChange) {
	s.mu.Lock()
	fns := make([]func(StateChange), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

func (s *Service) startSession(ctx context.Context, u storage.User) (Session, error) {
	now := s.now()
	sess := storage.Session{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.SessionTTL),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return Session{}, persistenceError(err)
	}

	token, err := signSession(s.opts.JWTSecret, u.ID, u.Email, sess.ID, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return Session{}, err
	}

	user := u
	s.notify(StateChange{UserID: u.ID, User: &user})
	return Session{Token: token, User: u, ExpiresAt: sess.ExpiresAt}, nil
}

func (s *Service) checkEmail(email string) error {
	if err := s.validate.Var(email, "required,email"); err != nil {
		return authErrorWrap(CodeInvalidEmail, err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func resetLink(base, code string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("oobCode", code)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
