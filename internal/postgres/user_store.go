package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdance/verdance/platform/internal/catalog"
	"github.com/verdance/verdance/platform/internal/domain"
)

// UserStore implements catalog.UserSource over the users table.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a UserStore backed by the given pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// GetUser looks a user up by case-insensitive email. A missing row returns
// catalog.ErrUserNotFound.
func (s *UserStore) GetUser(ctx context.Context, email string) (domain.User, error) {
	var (
		u        domain.User
		status   pgtype.Text
		tracking []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT email, subscription_status, request_tracking FROM users WHERE lower(email) = $1`,
		domain.Canonical(email),
	).Scan(&u.Email, &status, &tracking)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, fmt.Errorf("%w: %s", catalog.ErrUserNotFound, email)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}

	u.SubscriptionStatus = nullableTextToString(status)
	if len(tracking) > 0 {
		if err := json.Unmarshal(tracking, &u.RequestTracking); err != nil {
			return domain.User{}, fmt.Errorf("decode request tracking for %s: %w", email, err)
		}
	}
	return catalog.ResolveTier(u), nil
}
