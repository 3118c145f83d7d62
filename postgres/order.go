package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/salinamaris/crmsync"
)

// lib/pq errorCodeNames
// https://github.com/lib/pq/blob/master/error.go#L178
const uniqueViolation = "23505"

// OrderStore records one row per fulfilled checkout session. The unique
// constraint on session_id is what makes webhook redelivery idempotent.
type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) crmsync.OrderStore {
	return &OrderStore{
		db: db,
	}
}

func (s OrderStore) Add(ctx context.Context, o crmsync.Order) error {
	query := `
	INSERT INTO orders (
		id, session_id, payment_intent, email, amount_total, currency, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7
	)`

	_, err := s.db.ExecContext(ctx, query,
		o.ID,
		o.SessionID,
		o.PaymentIntent,
		o.Email,
		o.AmountTotal,
		o.Currency,
		o.CreatedAt,
	)

	if err != nil {
		if pqerr, ok := err.(*pq.Error); ok && pqerr.Code == uniqueViolation {
			return crmsync.ErrDuplicateOrder
		}
		return err
	}

	return nil
}

func (s OrderStore) GetBySession(ctx context.Context, sessionID string) (crmsync.Order, error) {
	query := `
	SELECT
		id,
		session_id,
		payment_intent,
		email,
		amount_total,
		currency,
		created_at
	FROM orders
	WHERE session_id=$1`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	o := crmsync.Order{}
	err := row.Scan(
		&o.ID,
		&o.SessionID,
		&o.PaymentIntent,
		&o.Email,
		&o.AmountTotal,
		&o.Currency,
		&o.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return o, crmsync.ErrOrderNotFound
		}
		return o, err
	}

	return o, nil
}
