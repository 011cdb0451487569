package users

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/monocart/internal/auth"
	"github.com/joao-fontenele/monocart/internal/domain"
	"github.com/joao-fontenele/monocart/internal/email"
)

type memStore struct {
	mu    sync.Mutex
	users map[int64]*domain.User
	next  int64
}

func newMemStore() *memStore {
	return &memStore{users: map[int64]*domain.User{}}
}

func (m *memStore) Create(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return domain.ErrEmailTaken
		}
	}
	m.next++
	u.ID = m.next
	stored := *u
	m.users[u.ID] = &stored
	return nil
}

func (m *memStore) FindByEmail(_ context.Context, addr string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == addr {
			found := *u
			return &found, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) FindByID(_ context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	found := *u
	return &found, nil
}

func (m *memStore) MarkEmailVerified(_ context.Context, tokenHash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.EmailVerificationToken != "" && u.EmailVerificationToken == tokenHash {
			u.IsEmailVerified = true
			u.EmailVerificationToken = ""
			return u.ID, nil
		}
	}
	return 0, domain.ErrInvalidToken
}

func (m *memStore) SetPhoneOTP(_ context.Context, userID int64, phone, otp string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Phone, u.PhoneOTP, u.PhoneOTPExpires = phone, otp, &expires
	return nil
}

func (m *memStore) MarkPhoneVerified(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.IsPhoneVerified, u.PhoneOTP, u.PhoneOTPExpires = true, "", nil
	return nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func newTestService(store Store, mailer Mailer) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, auth.NewTokenManager("test-secret", time.Hour), mailer, "http://shop.test/", logger)
}

// verificationToken pulls the raw token out of the mailed link.
func verificationToken(t *testing.T, msg email.Message) string {
	t.Helper()
	const marker = "/api/v1/users/verify-email/"
	i := strings.Index(msg.Body, marker)
	require.GreaterOrEqual(t, i, 0, msg.Body)
	return msg.Body[i+len(marker):]
}

func TestRegisterAndLogin(t *testing.T) {
	store := newMemStore()
	mailer := &fakeMailer{}
	svc := newTestService(store, mailer)
	ctx := context.Background()

	u, err := svc.Register(ctx, "Ada Lovelace", " Ada@Example.com ", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, domain.RoleCustomer, u.Role)
	assert.NotEqual(t, "secret123", store.users[u.ID].PasswordHash)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ada@example.com", mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].Body, "http://shop.test/api/v1/users/verify-email/")
	token := verificationToken(t, mailer.sent[0])
	assert.NotEqual(t, token, store.users[u.ID].EmailVerificationToken)

	_, err = svc.Register(ctx, "Imposter", "ada@example.com", "secret123")
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	raw, err := svc.Login(ctx, "ADA@example.com", "secret123")
	require.NoError(t, err)
	claims, err := auth.NewTokenManager("test-secret", time.Hour).Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.ID)
	assert.False(t, claims.Verified())

	_, err = svc.Login(ctx, "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogin_UnknownEmailStillChecksAPassword(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &fakeMailer{})
	ctx := context.Background()

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "secret123")
	require.NoError(t, err)

	var hashes []string
	svc.checkPassword = func(hash, password string) (bool, error) {
		hashes = append(hashes, hash)
		return auth.CheckPassword(hash, password)
	}

	_, err = svc.Login(ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	require.Len(t, hashes, 1)
	assert.Equal(t, auth.PlaceholderHash(), hashes[0])

	_, err = svc.Login(ctx, "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	require.Len(t, hashes, 2)
	assert.NotEqual(t, auth.PlaceholderHash(), hashes[1])
}

func TestRegister_MailFailureIsNotFatal(t *testing.T) {
	svc := newTestService(newMemStore(), &fakeMailer{err: errors.New("smtp down")})

	u, err := svc.Register(context.Background(), "Ada", "ada@example.com", "secret123")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
}

func TestVerifyEmail(t *testing.T) {
	store := newMemStore()
	mailer := &fakeMailer{}
	svc := newTestService(store, mailer)
	ctx := context.Background()

	u, err := svc.Register(ctx, "Ada", "ada@example.com", "secret123")
	require.NoError(t, err)
	token := verificationToken(t, mailer.sent[0])

	assert.ErrorIs(t, svc.VerifyEmail(ctx, "not-the-token"), domain.ErrInvalidToken)
	require.NoError(t, svc.VerifyEmail(ctx, token))
	assert.True(t, store.users[u.ID].IsEmailVerified)

	assert.ErrorIs(t, svc.VerifyEmail(ctx, token), domain.ErrInvalidToken)
}

func TestPhoneOTP(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	u, err := svc.Register(ctx, "Ada", "ada@example.com", "secret123")
	require.NoError(t, err)

	require.NoError(t, svc.SendPhoneOTP(ctx, u.ID, "5551234567"))
	otp := store.users[u.ID].PhoneOTP
	assert.Regexp(t, `^[1-9][0-9]{5}$`, otp)
	assert.Equal(t, now.Add(10*time.Minute), *store.users[u.ID].PhoneOTPExpires)

	wrong := "000000"
	assert.ErrorIs(t, svc.VerifyPhoneOTP(ctx, u.ID, wrong), domain.ErrInvalidOTP)

	now = now.Add(10 * time.Minute)
	assert.ErrorIs(t, svc.VerifyPhoneOTP(ctx, u.ID, otp), domain.ErrInvalidOTP)

	require.NoError(t, svc.SendPhoneOTP(ctx, u.ID, "5551234567"))
	otp = store.users[u.ID].PhoneOTP
	require.NoError(t, svc.VerifyPhoneOTP(ctx, u.ID, otp))
	assert.True(t, store.users[u.ID].IsPhoneVerified)

	assert.ErrorIs(t, svc.VerifyPhoneOTP(ctx, u.ID, otp), domain.ErrInvalidOTP)
	assert.ErrorIs(t, svc.VerifyPhoneOTP(ctx, 999, otp), domain.ErrNotFound)
	assert.ErrorIs(t, svc.SendPhoneOTP(ctx, 999, "5551234567"), domain.ErrNotFound)
}
