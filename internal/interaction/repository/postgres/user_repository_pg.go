package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/outreachd/interactiond/internal/interaction/domain"
)

type pgUserRepository struct {
	db DBPool
}

func NewPgUserRepository(db DBPool) domain.UserRepository {
	return &pgUserRepository{db: db}
}

// GetOrCreateByPhoneNumber upserts on the phone number so the first inbound
// message from a counterparty creates their record. The no-op DO UPDATE lets
// RETURNING yield the existing row on conflict.
func (r *pgUserRepository) GetOrCreateByPhoneNumber(ctx context.Context, phoneNumber string) (*domain.User, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO users (id, phone_number, subscribed, created_at, updated_at)
		VALUES ($1, $2, FALSE, $3, $3)
		ON CONFLICT (phone_number) DO UPDATE SET phone_number = EXCLUDED.phone_number
		RETURNING id, phone_number, subscribed, created_at, updated_at
	`
	user := &domain.User{}
	err := r.db.QueryRow(ctx, query, uuid.NewString(), phoneNumber, now).Scan(
		&user.ID, &user.PhoneNumber, &user.Subscribed, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *pgUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user := &domain.User{}
	query := `SELECT id, phone_number, subscribed, created_at, updated_at FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.PhoneNumber, &user.Subscribed, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *pgUserRepository) SetSubscribed(ctx context.Context, id string, subscribed bool) error {
	query := `UPDATE users SET subscribed = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, subscribed, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
