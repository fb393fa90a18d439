package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/outreachd/interactiond/internal/interaction/domain"
)

type pgOutboundRepository struct {
	db DBPool
}

func NewPgOutboundRepository(db DBPool) domain.OutboundRepository {
	return &pgOutboundRepository{db: db}
}

const outboundColumns = `id, number_id, user_id, action_id, provider_call_id, duration, answered_by, followup_sent, reprompt_sent, created_at, updated_at`

func (r *pgOutboundRepository) Create(ctx context.Context, outbound *domain.Outbound) error {
	query := `
		INSERT INTO outbounds (id, number_id, user_id, action_id, provider_call_id,
		                       duration, answered_by, followup_sent, reprompt_sent,
		                       created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		outbound.ID, outbound.NumberID, outbound.UserID, outbound.ActionID,
		outbound.ProviderCallID, outbound.Duration, string(outbound.AnsweredBy),
		outbound.FollowupSent, outbound.RepromptSent,
		outbound.CreatedAt, outbound.UpdatedAt,
	)
	return err
}

func (r *pgOutboundRepository) GetByCallID(ctx context.Context, providerCallID string) (*domain.Outbound, error) {
	query := `SELECT ` + outboundColumns + ` FROM outbounds WHERE provider_call_id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, providerCallID), domain.ErrOutboundNotFound)
}

func (r *pgOutboundRepository) SetAnsweredBy(ctx context.Context, id string, answeredBy domain.AnsweredBy) error {
	query := `UPDATE outbounds SET answered_by = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, string(answeredBy), time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOutboundNotFound
	}
	return nil
}

func (r *pgOutboundRepository) SetDuration(ctx context.Context, id, duration string) error {
	query := `UPDATE outbounds SET duration = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, duration, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOutboundNotFound
	}
	return nil
}

// ClaimFollowup flips followup_sent only if it is still false. The
// RowsAffected result is the compare-and-set verdict: true means this caller
// won the claim, false means another callback already holds it. Concurrent
// duplicate callbacks therefore cannot both send.
func (r *pgOutboundRepository) ClaimFollowup(ctx context.Context, id string) (bool, error) {
	query := `UPDATE outbounds SET followup_sent = TRUE, updated_at = $2 WHERE id = $1 AND followup_sent = FALSE`
	tag, err := r.db.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimReprompt is the reprompt counterpart of ClaimFollowup.
func (r *pgOutboundRepository) ClaimReprompt(ctx context.Context, id string) (bool, error) {
	query := `UPDATE outbounds SET reprompt_sent = TRUE, updated_at = $2 WHERE id = $1 AND reprompt_sent = FALSE`
	tag, err := r.db.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FindMostRecentPendingCall returns the newest outbound for the user whose
// disposition is neither human nor unknown (still pending, or answered by a
// machine), which is the call a "yes" reply confirms.
func (r *pgOutboundRepository) FindMostRecentPendingCall(ctx context.Context, userID string) (*domain.Outbound, error) {
	query := `
		SELECT ` + outboundColumns + `
		FROM outbounds
		WHERE user_id = $1 AND answered_by NOT IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1
	`
	row := r.db.QueryRow(ctx, query, userID,
		string(domain.AnsweredByHuman), string(domain.AnsweredByUnknown))
	return r.scanOne(row, domain.ErrNoPendingCall)
}

func (r *pgOutboundRepository) scanOne(row pgx.Row, notFound error) (*domain.Outbound, error) {
	outbound := &domain.Outbound{}
	var answeredBy string
	err := row.Scan(
		&outbound.ID, &outbound.NumberID, &outbound.UserID, &outbound.ActionID,
		&outbound.ProviderCallID, &outbound.Duration, &answeredBy,
		&outbound.FollowupSent, &outbound.RepromptSent,
		&outbound.CreatedAt, &outbound.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, err
	}
	outbound.AnsweredBy = domain.AnsweredBy(answeredBy)
	return outbound, nil
}
