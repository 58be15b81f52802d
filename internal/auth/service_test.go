package auth

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/infobmscommunity-ai/kohen-caption/internal/apperr"
	"github.com/infobmscommunity-ai/kohen-caption/internal/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var providerSecret = []byte("provider-secret")

func newTestService(t *testing.T) (*Service, *storage.Store, *fakeClock) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	store.SetClock(clock.Now)

	svc, err := NewService(store, Options{
		JWTSecret:      []byte("test-secret"),
		ProviderSecret: providerSecret,
		SessionTTL:     time.Hour,
		ResetURL:       "http://localhost:4100/reset-password",
		ResetTTL:       30 * time.Minute,
		MaxFailures:    3,
		FailureWindow:  10 * time.Minute,
		BcryptCost:     bcrypt.MinCost,
		Now:            clock.Now,
	})
	require.NoError(t, err)
	return svc, store, clock
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperr.CodeOf(err), "error: %v", err)
	assert.Equal(t, Message(code), apperr.MessageOf(err))
}

func TestNewService_RequiresSecret(t *testing.T) {
	_, err := NewService(nil, Options{})
	assert.Error(t, err)
}

func TestSignUpAndAuthenticate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.SignUp(ctx, "  Ani@Example.com ", "rahasia", "Ani")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "ani@example.com", sess.User.Email)
	assert.Equal(t, "Ani", sess.User.DisplayName)

	u, err := svc.Authenticate(ctx, "Bearer "+sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, u.ID)
}

func TestSignUp_Errors(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "not-an-email", "rahasia", "")
	requireCode(t, err, CodeInvalidEmail)

	_, err = svc.SignUp(ctx, "a@example.com", "12345", "")
	requireCode(t, err, CodeWeakPassword)

	_, err = svc.SignUp(ctx, "a@example.com", "123456", "")
	require.NoError(t, err)
	_, err = svc.SignUp(ctx, "A@example.com", "123456", "")
	requireCode(t, err, CodeEmailInUse)
}

func TestSignIn(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "budi@example.com", "rahasia", "Budi")
	require.NoError(t, err)

	sess, err := svc.SignIn(ctx, "budi@example.com", "rahasia")
	require.NoError(t, err)
	assert.Equal(t, "budi@example.com", sess.User.Email)

	_, err = svc.SignIn(ctx, "budi@example.com", "salah")
	requireCode(t, err, CodeWrongPassword)

	_, err = svc.SignIn(ctx, "nobody@example.com", "rahasia")
	requireCode(t, err, CodeUserNotFound)
}

func TestSignIn_TooManyRequests(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "c@example.com", "rahasia", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = svc.SignIn(ctx, "c@example.com", "salah")
		requireCode(t, err, CodeWrongPassword)
	}

	// The correct password is refused while throttled.
	_, err = svc.SignIn(ctx, "c@example.com", "rahasia")
	requireCode(t, err, CodeTooManyRequests)
	assert.Equal(t, 429, apperr.HTTPStatus(err))

	clock.Advance(11 * time.Minute)
	_, err = svc.SignIn(ctx, "c@example.com", "rahasia")
	require.NoError(t, err)
}

func TestSignOut_RevokesSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.SignUp(ctx, "d@example.com", "rahasia", "")
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(ctx, sess.Token))

	_, err = svc.Authenticate(ctx, sess.Token)
	requireCode(t, err, CodeInvalidSession)

	// Signing out twice is harmless.
	require.NoError(t, svc.SignOut(ctx, sess.Token))
}

func TestAuthenticate_Expired(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	sess, err := svc.SignUp(ctx, "e@example.com", "rahasia", "")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	_, err = svc.Authenticate(ctx, sess.Token)
	requireCode(t, err, CodeInvalidSession)

	// Expired sessions can still be signed out.
	require.NoError(t, svc.SignOut(ctx, sess.Token))
}

func TestAuthenticate_RejectsForeignTokens(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Authenticate(ctx, "")
	requireCode(t, err, CodeInvalidSession)

	_, err = svc.Authenticate(ctx, "garbage")
	requireCode(t, err, CodeInvalidSession)

	forged, err := signSession([]byte("other-secret"), "u1", "x@example.com", "s1", time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, forged)
	requireCode(t, err, CodeInvalidSession)
}

func TestSignInWithProvider(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	token, err := SignProviderToken(providerSecret, ProviderClaims{
		Email:   "Rina@Example.com",
		Name:    "Rina",
		Picture: "https://example.com/rina.png",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "google-123",
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)

	first, err := svc.SignInWithProvider(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "rina@example.com", first.User.Email)
	assert.Equal(t, "google", first.User.Provider)
	assert.Equal(t, "Rina", first.User.DisplayName)

	second, err := svc.SignInWithProvider(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID, "provider sign-in must reuse the account")

	// Provider-only accounts have no password.
	_, err = svc.SignIn(ctx, "rina@example.com", "anything")
	requireCode(t, err, CodeWrongPassword)
}

func TestSignInWithProvider_InvalidToken(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	expired, err := SignProviderToken(providerSecret, ProviderClaims{
		Email: "x@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(-time.Minute)),
		},
	})
	require.NoError(t, err)
	_, err = svc.SignInWithProvider(ctx, expired)
	assert.Equal(t, CodeInvalidCredential, apperr.CodeOf(err))

	wrongKey, err := SignProviderToken([]byte("nope"), ProviderClaims{
		Email: "x@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	_, err = svc.SignInWithProvider(ctx, wrongKey)
	assert.Equal(t, CodeInvalidCredential, apperr.CodeOf(err))
	assert.Equal(t, apperr.GenericMessage, apperr.MessageOf(err))
}

func TestSignInWithProvider_Disabled(t *testing.T) {
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	svc, err := NewService(store, Options{JWTSecret: []byte("s"), BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)

	_, err = svc.SignInWithProvider(context.Background(), "anything")
	assert.Equal(t, CodeProviderDisabled, apperr.CodeOf(err))
}

func resetCodeFromOutbox(t *testing.T, store *storage.Store) (ResetEmail, string) {
	t.Helper()
	job, err := store.ClaimNextJob(context.Background(), []string{JobPasswordResetEmail})
	require.NoError(t, err)
	require.NotNil(t, job, "no reset email queued")

	var mail ResetEmail
	require.NoError(t, json.Unmarshal([]byte(job.PayloadJSON), &mail))

	u, err := url.Parse(mail.Link)
	require.NoError(t, err)
	return mail, u.Query().Get("oobCode")
}

func TestPasswordReset_RoundTrip(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "f@example.com", "lama123", "")
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, "F@example.com"))

	mail, code := resetCodeFromOutbox(t, store)
	assert.Equal(t, "f@example.com", mail.Email)
	assert.True(t, strings.HasPrefix(mail.Link, "http://localhost:4100/reset-password?oobCode="))
	require.NotEmpty(t, code)

	require.NoError(t, svc.ConfirmPasswordReset(ctx, code, "baru123"))

	_, err = svc.SignIn(ctx, "f@example.com", "lama123")
	requireCode(t, err, CodeWrongPassword)
	_, err = svc.SignIn(ctx, "f@example.com", "baru123")
	require.NoError(t, err)

	// Codes are single-use.
	err = svc.ConfirmPasswordReset(ctx, code, "lagi123")
	requireCode(t, err, CodeInvalidActionCode)
}

func TestPasswordReset_Errors(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	err := svc.RequestPasswordReset(ctx, "ghost@example.com")
	requireCode(t, err, CodeUserNotFound)

	err = svc.RequestPasswordReset(ctx, "bad")
	requireCode(t, err, CodeInvalidEmail)

	err = svc.ConfirmPasswordReset(ctx, "unknown", "baru123")
	requireCode(t, err, CodeInvalidActionCode)

	_, err = svc.SignUp(ctx, "g@example.com", "lama123", "")
	require.NoError(t, err)
	require.NoError(t, svc.RequestPasswordReset(ctx, "g@example.com"))
	_, code := resetCodeFromOutbox(t, store)

	err = svc.ConfirmPasswordReset(ctx, code, "123")
	requireCode(t, err, CodeWeakPassword)

	clock.Advance(31 * time.Minute)
	err = svc.ConfirmPasswordReset(ctx, code, "baru123")
	requireCode(t, err, CodeExpiredActionCode)
}

func TestSubscribe(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	var changes []StateChange
	unsubscribe := svc.Subscribe(func(c StateChange) {
		changes = append(changes, c)
	})

	sess, err := svc.SignUp(ctx, "h@example.com", "rahasia", "")
	require.NoError(t, err)
	require.NoError(t, svc.SignOut(ctx, sess.Token))

	require.Len(t, changes, 2)
	require.NotNil(t, changes[0].User)
	assert.Equal(t, sess.User.ID, changes[0].User.ID)
	assert.Equal(t, sess.User.ID, changes[1].UserID)
	assert.Nil(t, changes[1].User)

	unsubscribe()
	unsubscribe()
	_, err = svc.SignIn(ctx, "h@example.com", "rahasia")
	require.NoError(t, err)
	assert.Len(t, changes, 2)
}

func TestMessage_Fallback(t *testing.T) {
	assert.Equal(t, "Password salah.", Message(CodeWrongPassword))
	assert.Equal(t, apperr.GenericMessage, Message("auth/something-new"))
}
