package postgres

import (
	"context"

	"github.com/outreachd/interactiond/internal/interaction/domain"
)

type pgInboundRepository struct {
	db DBPool
}

func NewPgInboundRepository(db DBPool) domain.InboundRepository {
	return &pgInboundRepository{db: db}
}

func (r *pgInboundRepository) Create(ctx context.Context, inbound *domain.Inbound) error {
	query := `
		INSERT INTO inbounds (id, user_id, number_id, body, provider_message_id, action_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		inbound.ID, inbound.UserID, inbound.NumberID, inbound.Body,
		inbound.ProviderMessageID, inbound.ActionID, inbound.CreatedAt,
	)
	return err
}

func (r *pgInboundRepository) AttachAction(ctx context.Context, inboundID, actionID string) error {
	query := `UPDATE inbounds SET action_id = $2 WHERE id = $1`
	_, err := r.db.Exec(ctx, query, inboundID, actionID)
	return err
}
