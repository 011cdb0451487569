package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/joao-fontenele/monocart/internal/domain"
)

const pqUniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, u *domain.User) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (full_name, email, password_hash, role, email_verification_token)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING id
	`, u.FullName, u.Email, u.PasswordHash, u.Role, u.EmailVerificationToken).Scan(&u.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const selectUser = `
	SELECT id, full_name, email, password_hash, role, is_email_verified,
	       COALESCE(phone, ''), is_phone_verified, COALESCE(phone_otp, ''), phone_otp_expires
	FROM users`

func (r *Repository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, selectUser+` WHERE email = $1`, email)
}

func (r *Repository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.findOne(ctx, selectUser+` WHERE id = $1`, id)
}

func (r *Repository) findOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	u := &domain.User{}
	var expires sql.NullTime
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.Role,
		&u.IsEmailVerified, &u.Phone, &u.IsPhoneVerified, &u.PhoneOTP, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	if expires.Valid {
		u.PhoneOTPExpires = &expires.Time
	}
	return u, nil
}

// MarkEmailVerified consumes the verification token with the given hash.
func (r *Repository) MarkEmailVerified(ctx context.Context, tokenHash string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET is_email_verified = TRUE, email_verification_token = NULL
		WHERE email_verification_token = $1
		RETURNING id
	`, tokenHash).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrInvalidToken
		}
		return 0, fmt.Errorf("verify email: %w", err)
	}
	return id, nil
}

func (r *Repository) SetPhoneOTP(ctx context.Context, userID int64, phone, otp string, expires time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET phone = $2, phone_otp = $3, phone_otp_expires = $4 WHERE id = $1
	`, userID, phone, otp, expires)
	if err != nil {
		return fmt.Errorf("set phone otp: %w", err)
	}
	return requireOneRow(res)
}

func (r *Repository) MarkPhoneVerified(ctx context.Context, userID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET is_phone_verified = TRUE, phone_otp = NULL, phone_otp_expires = NULL
		WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("verify phone: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
