package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/outreachd/interactiond/internal/interaction/domain"
)

type pgNumberRepository struct {
	db DBPool
}

func NewPgNumberRepository(db DBPool) domain.NumberRepository {
	return &pgNumberRepository{db: db}
}

const numberColumns = `id, value, alpha_id, alpha_sender, followup, fallback, reprompt, created_at, updated_at`

func (r *pgNumberRepository) GetByValue(ctx context.Context, value string) (*domain.Number, error) {
	return r.get(ctx, `SELECT `+numberColumns+` FROM numbers WHERE value = $1`, value)
}

func (r *pgNumberRepository) GetByID(ctx context.Context, id string) (*domain.Number, error) {
	return r.get(ctx, `SELECT `+numberColumns+` FROM numbers WHERE id = $1`, id)
}

func (r *pgNumberRepository) get(ctx context.Context, query string, arg any) (*domain.Number, error) {
	number := &domain.Number{}
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&number.ID, &number.Value, &number.AlphaID, &number.AlphaSender,
		&number.Followup, &number.Fallback, &number.Reprompt,
		&number.CreatedAt, &number.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNumberNotFound
		}
		return nil, err
	}
	return number, nil
}
