package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kamdhenuseva/server/internal/model"
)

// DonationFilter narrows a donation history listing.
type DonationFilter struct {
	Kind   *model.DonationKind
	Status *model.DonationStatus
	Page   Page
}

// DonationRepo stores donations. Status changes are conditional on the current
// status so that concurrent writers cannot regress a settled donation.
type DonationRepo interface {
	Create(ctx context.Context, d model.Donation) (model.Donation, error)
	GetByProviderOrderID(ctx context.Context, orderID string) (model.Donation, error)
	Capture(ctx context.Context, orderID, paymentID string, event model.TimelineEvent) (model.Donation, error)
	MarkFailed(ctx context.Context, accountID uuid.UUID, kind model.DonationKind, cowID *string, event model.TimelineEvent) (model.Donation, error)
	MarkEmailSent(ctx context.Context, id uuid.UUID) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, f DonationFilter) ([]model.Donation, int, error)
}

type donationRepo struct {
	db *sql.DB
}

// NewDonationRepo creates a new DonationRepo instance
func NewDonationRepo(db *sql.DB) DonationRepo {
	return &donationRepo{db: db}
}

const donationColumns = `id, account_id, kind, cow_id, amount, currency, status, provider_order_id,
	provider_payment_id, email_sent, timeline, created_at, updated_at`

func scanDonation(row interface{ Scan(...any) error }) (model.Donation, error) {
	var d model.Donation
	var kind, status string
	err := row.Scan(
		&d.ID,
		&d.AccountID,
		&kind,
		&d.CowID,
		&d.Amount,
		&d.Currency,
		&status,
		&d.ProviderOrderID,
		&d.ProviderPaymentID,
		&d.EmailSent,
		&d.Timeline,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	d.Kind = model.DonationKind(kind)
	d.Status = model.DonationStatus(status)
	return d, err
}

func donationStatuses(ss []model.DonationStatus) pq.StringArray {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return pq.StringArray(out)
}

func eventJSON(e model.TimelineEvent) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode timeline event: %w", err)
	}
	return string(b), nil
}

// Create inserts a Pending donation.
func (r *donationRepo) Create(ctx context.Context, d model.Donation) (model.Donation, error) {
	if d.Status == "" {
		d.Status = model.DonationPending
	}
	if d.Currency == "" {
		d.Currency = model.CurrencyINR
	}
	out, err := scanDonation(r.db.QueryRowContext(ctx, `
		INSERT INTO donations (account_id, kind, cow_id, amount, currency, status, provider_order_id, timeline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+donationColumns,
		d.AccountID, string(d.Kind), d.CowID, d.Amount, d.Currency, string(d.Status), d.ProviderOrderID, d.Timeline,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return model.Donation{}, fmt.Errorf("insert donation: %w", ErrDuplicate)
		}
		return model.Donation{}, fmt.Errorf("insert donation: %w", err)
	}
	return out, nil
}

// GetByProviderOrderID looks a donation up by its gateway order id.
func (r *donationRepo) GetByProviderOrderID(ctx context.Context, orderID string) (model.Donation, error) {
	d, err := scanDonation(r.db.QueryRowContext(ctx,
		`SELECT `+donationColumns+` FROM donations WHERE provider_order_id = $1`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Donation{}, fmt.Errorf("get donation: %w", ErrNotFound)
		}
		return model.Donation{}, fmt.Errorf("get donation: %w", err)
	}
	return d, nil
}

// Capture moves a donation to Successful and records the payment id.
func (r *donationRepo) Capture(ctx context.Context, orderID, paymentID string, event model.TimelineEvent) (model.Donation, error) {
	ev, err := eventJSON(event)
	if err != nil {
		return model.Donation{}, err
	}
	d, err := scanDonation(r.db.QueryRowContext(ctx, `
		UPDATE donations
		SET status = $3,
		    provider_payment_id = $2,
		    timeline = timeline || $4::jsonb,
		    updated_at = now()
		WHERE provider_order_id = $1 AND status = ANY($5)
		RETURNING `+donationColumns,
		orderID, paymentID, string(model.DonationSuccessful), ev,
		donationStatuses(model.DonationSources(model.DonationSuccessful)),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Donation{}, fmt.Errorf("capture donation: %w", ErrNoMatch)
		}
		return model.Donation{}, fmt.Errorf("capture donation: %w", err)
	}
	return d, nil
}

// MarkFailed fails the caller's newest pending donation of the given kind (and cow).
func (r *donationRepo) MarkFailed(ctx context.Context, accountID uuid.UUID, kind model.DonationKind, cowID *string, event model.TimelineEvent) (model.Donation, error) {
	ev, err := eventJSON(event)
	if err != nil {
		return model.Donation{}, err
	}
	sources := donationStatuses(model.DonationSources(model.DonationFailed))
	d, err := scanDonation(r.db.QueryRowContext(ctx, `
		UPDATE donations
		SET status = $1, timeline = timeline || $2::jsonb, updated_at = now()
		WHERE id = (
			SELECT id FROM donations
			WHERE account_id = $3
			  AND kind = $4
			  AND ($5::text IS NULL OR cow_id = $5)
			  AND status = ANY($6)
			ORDER BY created_at DESC
			LIMIT 1
		) AND status = ANY($6)
		RETURNING `+donationColumns,
		string(model.DonationFailed), ev, accountID, string(kind), cowID, sources,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Donation{}, fmt.Errorf("mark donation failed: %w", ErrNoMatch)
		}
		return model.Donation{}, fmt.Errorf("mark donation failed: %w", err)
	}
	return d, nil
}

// MarkEmailSent records that the receipt email went out.
func (r *donationRepo) MarkEmailSent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE donations SET email_sent = TRUE, updated_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}
	return nil
}

// ListByAccount returns one page of the account's donations, newest first, and the total count.
func (r *donationRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, f DonationFilter) ([]model.Donation, int, error) {
	where := []string{"account_id = $1"}
	args := []any{accountID}
	if f.Kind != nil {
		args = append(args, string(*f.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM donations WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count donations: %w", err)
	}

	args = append(args, f.Page.Limit, f.Page.Offset())
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM donations WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		donationColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list donations: %w", err)
	}
	defer rows.Close()

	var out []model.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan donation: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate donations: %w", err)
	}
	return out, total, nil
}
