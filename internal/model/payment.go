package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CurrencyINR is the only currency accepted by the gateway account.
const CurrencyINR = "INR"

// DonationKind says what a donation supports.
type DonationKind string

const (
	DonationCow    DonationKind = "cow"
	DonationAshram DonationKind = "ashram"
)

// Valid reports whether k is a known donation kind.
func (k DonationKind) Valid() bool {
	return k == DonationCow || k == DonationAshram
}

// TimelineEvent is one entry in a record's audit trail.
type TimelineEvent struct {
	Type string    `json:"type"`
	Note string    `json:"note,omitempty"`
	By   string    `json:"by"`
	At   time.Time `json:"at"`
}

// Timeline events, ordered oldest first. Stored as jsonb.
type Timeline []TimelineEvent

// Value implements driver.Valuer.
func (t Timeline) Value() (driver.Value, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner.
func (t *Timeline) Scan(src any) error {
	return scanJSON(src, t)
}

// ByUser formats the actor string for a user-initiated event.
func ByUser(id uuid.UUID) string {
	return "user:" + id.String()
}

// BySystem is the actor for webhook-driven events.
const BySystem = "system"

// Donation is a single gift towards a cow or the ashram.
type Donation struct {
	ID                uuid.UUID
	AccountID         uuid.UUID
	Kind              DonationKind
	CowID             *string
	Amount            decimal.Decimal
	Currency          string
	Status            DonationStatus
	ProviderOrderID   string
	ProviderPaymentID *string
	EmailSent         bool
	Timeline          Timeline
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PujaCustomer is the contact a puja booking is made for.
type PujaCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Value implements driver.Valuer.
func (c PujaCustomer) Value() (driver.Value, error) { return json.Marshal(c) }

// Scan implements sql.Scanner.
func (c *PujaCustomer) Scan(src any) error { return scanJSON(src, c) }

// PujaDetails are the ritual-specific booking fields.
type PujaDetails struct {
	Gotra           string     `json:"gotra"`
	Sankalpam       string     `json:"sankalpam"`
	PreferredDate   *time.Time `json:"preferredDate,omitempty"`
	NamesToInclude  string     `json:"namesToInclude,omitempty"`
	AdditionalNotes string     `json:"additionalNotes,omitempty"`
}

// Value implements driver.Valuer.
func (d PujaDetails) Value() (driver.Value, error) { return json.Marshal(d) }

// Scan implements sql.Scanner.
func (d *PujaDetails) Scan(src any) error { return scanJSON(src, d) }

// PujaOrder is a cow puja booking tied to one gateway order.
type PujaOrder struct {
	ID                uuid.UUID
	AccountID         uuid.UUID
	ProviderOrderID   string
	ProviderPaymentID *string
	Status            PujaStatus
	Amount            decimal.Decimal
	Currency          string
	Customer          PujaCustomer
	Details           PujaDetails
	ScheduledDate     *time.Time
	Timeline          Timeline
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DefaultPujaAmount is the booking price in rupees when the client omits one.
var DefaultPujaAmount = decimal.NewFromInt(2100)

// ToPaise converts a rupee amount to the gateway's smallest currency unit.
func ToPaise(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported json source %T", src)
	}
}
