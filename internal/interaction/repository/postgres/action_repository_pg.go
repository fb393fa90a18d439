package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/outreachd/interactiond/internal/interaction/domain"
)

type pgActionRepository struct {
	db DBPool
}

func NewPgActionRepository(db DBPool) domain.ActionRepository {
	return &pgActionRepository{db: db}
}

const actionColumns = `id, number_id, keyword, audio_url, body, followup, reprompt, created_at, updated_at`

// GetByKeyword matches exactly on the stored (lower-cased) keyword, scoped
// to the number. The (number_id, keyword) pair is unique by schema.
func (r *pgActionRepository) GetByKeyword(ctx context.Context, numberID, keyword string) (*domain.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE number_id = $1 AND keyword = $2`
	return r.get(ctx, query, numberID, keyword)
}

func (r *pgActionRepository) GetByID(ctx context.Context, id string) (*domain.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE id = $1`
	return r.get(ctx, query, id)
}

func (r *pgActionRepository) get(ctx context.Context, query string, args ...any) (*domain.Action, error) {
	action := &domain.Action{}
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&action.ID, &action.NumberID, &action.Keyword,
		&action.AudioURL, &action.Body, &action.Followup, &action.Reprompt,
		&action.CreatedAt, &action.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrActionNotFound
		}
		return nil, err
	}
	return action, nil
}
