// Package users covers registration, login and the email and phone
// verification flows.
package users

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/joao-fontenele/monocart/internal/auth"
	"github.com/joao-fontenele/monocart/internal/domain"
	"github.com/joao-fontenele/monocart/internal/email"
)

const (
	otpTTL        = 10 * time.Minute
	mailTimeout   = 5 * time.Second
	verifySubject = "Verify Your MonoCart Account"
)

type Store interface {
	Create(ctx context.Context, u *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	MarkEmailVerified(ctx context.Context, tokenHash string) (int64, error)
	SetPhoneOTP(ctx context.Context, userID int64, phone, otp string, expires time.Time) error
	MarkPhoneVerified(ctx context.Context, userID int64) error
}

type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

type Service struct {
	store   Store
	tokens  *auth.TokenManager
	mailer  Mailer
	baseURL string
	logger  *slog.Logger
	now     func() time.Time

	checkPassword func(hash, password string) (bool, error)
}

// NewService builds a Service. mailer may be nil, in which case verification
// links are only logged.
func NewService(store Store, tokens *auth.TokenManager, mailer Mailer, publicBaseURL string, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		tokens:  tokens,
		mailer:  mailer,
		baseURL: strings.TrimSuffix(publicBaseURL, "/"),
		logger:  logger,
		now:     time.Now,

		checkPassword: auth.CheckPassword,
	}
}

// Register creates a customer account and mails a verification link. A
// failed mail does not fail the registration.
func (s *Service) Register(ctx context.Context, fullName, emailAddr, password string) (*domain.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	token, err := randomHex(32)
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}

	u := &domain.User{
		FullName:               strings.TrimSpace(fullName),
		Email:                  normalizeEmail(emailAddr),
		PasswordHash:           hash,
		Role:                   domain.RoleCustomer,
		EmailVerificationToken: hashToken(token),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", u.ID)
	s.sendVerification(ctx, u, token)
	return u, nil
}

func (s *Service) sendVerification(ctx context.Context, u *domain.User, token string) {
	link := s.baseURL + "/api/v1/users/verify-email/" + token
	if s.mailer == nil {
		s.logger.Info("email verification link", "user_id", u.ID, "url", link)
		return
	}

	mctx, cancel := context.WithTimeout(ctx, mailTimeout)
	defer cancel()

	err := s.mailer.Send(mctx, email.Message{
		To:      u.Email,
		Subject: verifySubject,
		Body:    "please verify your account by clicking this link: " + link,
		HTML:    `<p>Please verify your account by clicking <a href="` + link + `">this link</a>.</p>`,
	})
	if err != nil {
		s.logger.Error("failed to send verification email", "error", err, "user_id", u.ID)
	}
}

// Login returns a signed access token. Unknown emails and wrong passwords
// both yield domain.ErrInvalidCredentials after the same bcrypt work.
func (s *Service) Login(ctx context.Context, emailAddr, password string) (string, error) {
	u, err := s.store.FindByEmail(ctx, normalizeEmail(emailAddr))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			_, _ = s.checkPassword(auth.PlaceholderHash(), password)
			return "", domain.ErrInvalidCredentials
		}
		return "", err
	}

	ok, err := s.checkPassword(u.PasswordHash, password)
	if err != nil {
		return "", fmt.Errorf("check password: %w", err)
	}
	if !ok {
		return "", domain.ErrInvalidCredentials
	}

	return s.tokens.Issue(u)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	id, err := s.store.MarkEmailVerified(ctx, hashToken(token))
	if err != nil {
		return err
	}
	s.logger.Info("email verified", "user_id", id)
	return nil
}

// SendPhoneOTP stores a fresh six digit code for the phone. There is no SMS
// gateway; the code is logged.
func (s *Service) SendPhoneOTP(ctx context.Context, userID int64, phone string) error {
	otp, err := newOTP()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	if err := s.store.SetPhoneOTP(ctx, userID, strings.TrimSpace(phone), otp, s.now().Add(otpTTL)); err != nil {
		return err
	}

	s.logger.Info("phone otp issued", "user_id", userID, "otp", otp)
	return nil
}

func (s *Service) VerifyPhoneOTP(ctx context.Context, userID int64, otp string) error {
	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if u.PhoneOTP == "" || subtle.ConstantTimeCompare([]byte(u.PhoneOTP), []byte(otp)) != 1 {
		return domain.ErrInvalidOTP
	}
	if u.PhoneOTPExpires != nil && !s.now().Before(*u.PhoneOTPExpires) {
		return domain.ErrInvalidOTP
	}

	if err := s.store.MarkPhoneVerified(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("phone verified", "user_id", userID)
	return nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func newOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
