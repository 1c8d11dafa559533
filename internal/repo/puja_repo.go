package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kamdhenuseva/server/internal/model"
)

// PujaTransition describes a guarded status change on a puja order.
// Exactly one of ProviderOrderID or Latest must select the row.
type PujaTransition struct {
	ProviderOrderID string
	AccountID       *uuid.UUID
	// Latest picks the account's newest order in a source status.
	Latest    bool
	To        model.PujaStatus
	PaymentID *string
	Event     model.TimelineEvent
}

// PujaRepo stores cow puja bookings.
type PujaRepo interface {
	Create(ctx context.Context, o model.PujaOrder) (model.PujaOrder, error)
	GetByProviderOrderID(ctx context.Context, orderID string) (model.PujaOrder, error)
	GetForAccount(ctx context.Context, accountID, id uuid.UUID) (model.PujaOrder, error)
	Transition(ctx context.Context, t PujaTransition) (model.PujaOrder, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, status *model.PujaStatus, page Page) ([]model.PujaOrder, int, error)
}

type pujaRepo struct {
	db *sql.DB
}

// NewPujaRepo creates a new PujaRepo instance
func NewPujaRepo(db *sql.DB) PujaRepo {
	return &pujaRepo{db: db}
}

const pujaColumns = `id, account_id, provider_order_id, provider_payment_id, status, amount, currency,
	customer, puja_details, scheduled_date, timeline, created_at, updated_at`

func scanPuja(row interface{ Scan(...any) error }) (model.PujaOrder, error) {
	var o model.PujaOrder
	var status string
	err := row.Scan(
		&o.ID,
		&o.AccountID,
		&o.ProviderOrderID,
		&o.ProviderPaymentID,
		&status,
		&o.Amount,
		&o.Currency,
		&o.Customer,
		&o.Details,
		&o.ScheduledDate,
		&o.Timeline,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	o.Status = model.PujaStatus(status)
	return o, err
}

func pujaStatuses(ss []model.PujaStatus) pq.StringArray {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return pq.StringArray(out)
}

func (r *pujaRepo) one(ctx context.Context, op string, miss error, query string, args ...any) (model.PujaOrder, error) {
	o, err := scanPuja(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PujaOrder{}, fmt.Errorf("%s: %w", op, miss)
		}
		if isUniqueViolation(err) {
			return model.PujaOrder{}, fmt.Errorf("%s: %w", op, ErrDuplicate)
		}
		return model.PujaOrder{}, fmt.Errorf("%s: %w", op, err)
	}
	return o, nil
}

// Create inserts an AwaitingPayment order.
func (r *pujaRepo) Create(ctx context.Context, o model.PujaOrder) (model.PujaOrder, error) {
	if o.Status == "" {
		o.Status = model.PujaAwaitingPayment
	}
	if o.Currency == "" {
		o.Currency = model.CurrencyINR
	}
	return r.one(ctx, "insert puja order", ErrNotFound, `
		INSERT INTO puja_orders (account_id, provider_order_id, status, amount, currency, customer, puja_details, timeline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+pujaColumns,
		o.AccountID, o.ProviderOrderID, string(o.Status), o.Amount, o.Currency, o.Customer, o.Details, o.Timeline)
}

// GetByProviderOrderID looks an order up by its gateway order id.
func (r *pujaRepo) GetByProviderOrderID(ctx context.Context, orderID string) (model.PujaOrder, error) {
	return r.one(ctx, "get puja order", ErrNotFound,
		`SELECT `+pujaColumns+` FROM puja_orders WHERE provider_order_id = $1`, orderID)
}

// GetForAccount returns an order only if it belongs to accountID.
func (r *pujaRepo) GetForAccount(ctx context.Context, accountID, id uuid.UUID) (model.PujaOrder, error) {
	return r.one(ctx, "get puja order", ErrNotFound,
		`SELECT `+pujaColumns+` FROM puja_orders WHERE id = $1 AND account_id = $2`, id, accountID)
}

// Transition applies t only if the order is currently in a status that may move to t.To.
func (r *pujaRepo) Transition(ctx context.Context, t PujaTransition) (model.PujaOrder, error) {
	sources := model.PujaSources(t.To)
	if len(sources) == 0 {
		return model.PujaOrder{}, fmt.Errorf("puja transition to %s: %w", t.To, ErrNoMatch)
	}
	if t.Latest && t.AccountID == nil {
		return model.PujaOrder{}, errors.New("puja transition: latest requires an account")
	}
	if !t.Latest && t.ProviderOrderID == "" {
		return model.PujaOrder{}, errors.New("puja transition: no order selected")
	}
	ev, err := eventJSON(t.Event)
	if err != nil {
		return model.PujaOrder{}, err
	}

	var accountID any
	if t.AccountID != nil {
		accountID = *t.AccountID
	}

	target := `provider_order_id = $5`
	if t.Latest {
		target = `id = (
			SELECT id FROM puja_orders
			WHERE account_id = $6 AND status = ANY($4)
			ORDER BY created_at DESC
			LIMIT 1
		)`
	}

	return r.one(ctx, "puja transition", ErrNoMatch, `
		UPDATE puja_orders
		SET status = $1,
		    provider_payment_id = COALESCE($2, provider_payment_id),
		    timeline = timeline || $3::jsonb,
		    updated_at = now()
		WHERE `+target+`
		  AND status = ANY($4)
		  AND ($6::uuid IS NULL OR account_id = $6)
		  AND ($5::text = '' OR provider_order_id = $5)
		RETURNING `+pujaColumns,
		string(t.To), t.PaymentID, ev, pujaStatuses(sources), t.ProviderOrderID, accountID)
}

// ListByAccount returns one page of the account's orders, newest first, and the total count.
func (r *pujaRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, status *model.PujaStatus, page Page) ([]model.PujaOrder, int, error) {
	var statusArg any
	if status != nil {
		statusArg = string(*status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `
		SELECT count(*) FROM puja_orders
		WHERE account_id = $1 AND ($2::text IS NULL OR status = $2)
	`, accountID, statusArg).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count puja orders: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+pujaColumns+` FROM puja_orders
		WHERE account_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, accountID, statusArg, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list puja orders: %w", err)
	}
	defer rows.Close()

	var out []model.PujaOrder
	for rows.Next() {
		o, err := scanPuja(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan puja order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate puja orders: %w", err)
	}
	return out, total, nil
}
