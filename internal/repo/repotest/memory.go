// Package repotest provides in-memory repositories with the same guard
// semantics as the Postgres implementations, for unit tests.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kamdhenuseva/server/internal/model"
	"github.com/kamdhenuseva/server/internal/repo"
)

// Accounts is an in-memory repo.AccountRepo.
type Accounts struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.Account
	next int64
}

// NewAccounts creates an empty store.
func NewAccounts() *Accounts {
	return &Accounts{byID: make(map[uuid.UUID]*model.Account), next: 1000000}
}

var _ repo.AccountRepo = (*Accounts)(nil)

// Put stores a copy of a, assigning an id if it has none.
func (s *Accounts) Put(a model.Account) model.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.PublicID == 0 {
		a.PublicID = s.next
		s.next++
	}
	a.Email = strings.ToLower(a.Email)
	cp := a
	s.byID[a.ID] = &cp
	return a
}

// Get returns the stored account, for assertions.
func (s *Accounts) Get(id uuid.UUID) (model.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return model.Account{}, false
	}
	return *a, true
}

func (s *Accounts) findEmail(email string) *model.Account {
	for _, a := range s.byID {
		if a.Email == strings.ToLower(email) {
			return a
		}
	}
	return nil
}

func (s *Accounts) GetByID(_ context.Context, id uuid.UUID) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return model.Account{}, fmt.Errorf("get account: %w", repo.ErrNotFound)
	}
	return *a, nil
}

func (s *Accounts) GetByEmail(_ context.Context, email string) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.findEmail(email); a != nil {
		return *a, nil
	}
	return model.Account{}, fmt.Errorf("get account: %w", repo.ErrNotFound)
}

func (s *Accounts) GetOrCreateByEmail(ctx context.Context, email string) (model.Account, error) {
	if a, err := s.GetByEmail(ctx, email); err == nil {
		return a, nil
	}
	now := time.Now()
	return s.Put(model.Account{Email: email, CreatedAt: now, UpdatedAt: now}), nil
}

func (s *Accounts) SetOTP(_ context.Context, id uuid.UUID, code string, intent model.OTPIntent, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("set otp: %w", repo.ErrNotFound)
	}
	a.OTPCode, a.OTPExpiresAt, a.OTPIntent = &code, &expiresAt, &intent
	return nil
}

func (s *Accounts) ConsumeOTP(_ context.Context, id uuid.UUID, code string, intent model.OTPIntent, now time.Time, effect model.OTPEffect) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok || a.OTPCode == nil || *a.OTPCode != code ||
		a.OTPIntent == nil || *a.OTPIntent != intent ||
		a.OTPExpiresAt == nil || !a.OTPExpiresAt.After(now) {
		return model.Account{}, fmt.Errorf("consume otp: %w", repo.ErrNoMatch)
	}
	a.OTPCode, a.OTPExpiresAt, a.OTPIntent = nil, nil, nil
	a.IsVerified = a.IsVerified || effect.MarkVerified
	if effect.SetTwoFactor != nil {
		a.TwoFactorEnabled = *effect.SetTwoFactor
	}
	if effect.PasswordHash != nil {
		h := *effect.PasswordHash
		a.PasswordHash = &h
	}
	return *a, nil
}

func (s *Accounts) CompleteRegistration(_ context.Context, id uuid.UUID, name, passwordHash string, dob *time.Time) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok || !a.IsVerified || a.PasswordHash != nil {
		return model.Account{}, fmt.Errorf("complete registration: %w", repo.ErrNoMatch)
	}
	a.Name, a.PasswordHash = &name, &passwordHash
	if dob != nil {
		a.DateOfBirth = dob
	}
	return *a, nil
}

func (s *Accounts) UpdateProfile(_ context.Context, id uuid.UUID, email *string, dob *time.Time) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return model.Account{}, fmt.Errorf("update profile: %w", repo.ErrNotFound)
	}
	if email != nil {
		if other := s.findEmail(*email); other != nil && other.ID != id {
			return model.Account{}, fmt.Errorf("update profile: %w", repo.ErrDuplicate)
		}
		a.Email = strings.ToLower(*email)
	}
	if dob != nil {
		a.DateOfBirth = dob
	}
	return *a, nil
}

func (s *Accounts) UpdateName(_ context.Context, id uuid.UUID, name string) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return model.Account{}, fmt.Errorf("update name: %w", repo.ErrNotFound)
	}
	a.Name = &name
	return *a, nil
}

func (s *Accounts) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok || !a.IsVerified {
		return fmt.Errorf("update password: %w", repo.ErrNoMatch)
	}
	a.PasswordHash = &passwordHash
	return nil
}

func (s *Accounts) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return fmt.Errorf("delete account: %w", repo.ErrNotFound)
	}
	delete(s.byID, id)
	return nil
}

// Sessions is an in-memory repo.SessionRepo. Set Err to make writes fail.
type Sessions struct {
	mu   sync.Mutex
	rows []model.Session
	Err  error
}

var _ repo.SessionRepo = (*Sessions)(nil)

func (s *Sessions) Create(_ context.Context, sess model.Session) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.Session{}, s.Err
	}
	sess.ID = uuid.New()
	sess.CreatedAt = time.Now()
	s.rows = append(s.rows, sess)
	return sess, nil
}

// All returns the recorded sessions.
func (s *Sessions) All() []model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Session(nil), s.rows...)
}

// Donations is an in-memory repo.DonationRepo.
type Donations struct {
	mu   sync.Mutex
	rows []*model.Donation
	seq  time.Time
}

var _ repo.DonationRepo = (*Donations)(nil)

// NewDonations creates an empty store.
func NewDonations() *Donations {
	return &Donations{seq: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// tick hands out strictly increasing creation times so ordering is deterministic.
func (s *Donations) tick() time.Time {
	s.seq = s.seq.Add(time.Second)
	return s.seq
}

func (s *Donations) Create(_ context.Context, d model.Donation) (model.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ProviderOrderID == d.ProviderOrderID {
			return model.Donation{}, fmt.Errorf("insert donation: %w", repo.ErrDuplicate)
		}
	}
	if d.Status == "" {
		d.Status = model.DonationPending
	}
	if d.Currency == "" {
		d.Currency = model.CurrencyINR
	}
	d.ID = uuid.New()
	d.CreatedAt = s.tick()
	d.UpdatedAt = d.CreatedAt
	cp := d
	s.rows = append(s.rows, &cp)
	return d, nil
}

func (s *Donations) GetByProviderOrderID(_ context.Context, orderID string) (model.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ProviderOrderID == orderID {
			return *r, nil
		}
	}
	return model.Donation{}, fmt.Errorf("get donation: %w", repo.ErrNotFound)
}

func (s *Donations) Capture(_ context.Context, orderID, paymentID string, event model.TimelineEvent) (model.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ProviderOrderID == orderID && r.Status.CanTransition(model.DonationSuccessful) {
			r.Status = model.DonationSuccessful
			r.ProviderPaymentID = &paymentID
			r.Timeline = append(r.Timeline, event)
			return *r, nil
		}
	}
	return model.Donation{}, fmt.Errorf("capture donation: %w", repo.ErrNoMatch)
}

func (s *Donations) MarkFailed(_ context.Context, accountID uuid.UUID, kind model.DonationKind, cowID *string, event model.TimelineEvent) (model.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pick *model.Donation
	for _, r := range s.rows {
		if r.AccountID != accountID || r.Kind != kind || !r.Status.CanTransition(model.DonationFailed) {
			continue
		}
		if cowID != nil && (r.CowID == nil || *r.CowID != *cowID) {
			continue
		}
		if pick == nil || r.CreatedAt.After(pick.CreatedAt) {
			pick = r
		}
	}
	if pick == nil {
		return model.Donation{}, fmt.Errorf("mark donation failed: %w", repo.ErrNoMatch)
	}
	pick.Status = model.DonationFailed
	pick.Timeline = append(pick.Timeline, event)
	return *pick, nil
}

func (s *Donations) MarkEmailSent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ID == id {
			r.EmailSent = true
			return nil
		}
	}
	return nil
}

func (s *Donations) ListByAccount(_ context.Context, accountID uuid.UUID, f repo.DonationFilter) ([]model.Donation, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []model.Donation
	for _, r := range s.rows {
		if r.AccountID != accountID {
			continue
		}
		if f.Kind != nil && r.Kind != *f.Kind {
			continue
		}
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		all = append(all, *r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return window(all, f.Page), len(all), nil
}

// Pujas is an in-memory repo.PujaRepo.
type Pujas struct {
	mu   sync.Mutex
	rows []*model.PujaOrder
	seq  time.Time
}

var _ repo.PujaRepo = (*Pujas)(nil)

// NewPujas creates an empty store.
func NewPujas() *Pujas {
	return &Pujas{seq: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (s *Pujas) Create(_ context.Context, o model.PujaOrder) (model.PujaOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ProviderOrderID == o.ProviderOrderID {
			return model.PujaOrder{}, fmt.Errorf("insert puja order: %w", repo.ErrDuplicate)
		}
	}
	if o.Status == "" {
		o.Status = model.PujaAwaitingPayment
	}
	if o.Currency == "" {
		o.Currency = model.CurrencyINR
	}
	s.seq = s.seq.Add(time.Second)
	o.ID = uuid.New()
	o.CreatedAt, o.UpdatedAt = s.seq, s.seq
	cp := o
	s.rows = append(s.rows, &cp)
	return o, nil
}

func (s *Pujas) GetByProviderOrderID(_ context.Context, orderID string) (model.PujaOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ProviderOrderID == orderID {
			return *r, nil
		}
	}
	return model.PujaOrder{}, fmt.Errorf("get puja order: %w", repo.ErrNotFound)
}

func (s *Pujas) GetForAccount(_ context.Context, accountID, id uuid.UUID) (model.PujaOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ID == id && r.AccountID == accountID {
			return *r, nil
		}
	}
	return model.PujaOrder{}, fmt.Errorf("get puja order: %w", repo.ErrNotFound)
}

func (s *Pujas) Transition(_ context.Context, t repo.PujaTransition) (model.PujaOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Latest && t.AccountID == nil {
		return model.PujaOrder{}, errors.New("puja transition: latest requires an account")
	}
	var pick *model.PujaOrder
	for _, r := range s.rows {
		if !r.Status.CanTransition(t.To) {
			continue
		}
		if t.AccountID != nil && r.AccountID != *t.AccountID {
			continue
		}
		if t.ProviderOrderID != "" && r.ProviderOrderID != t.ProviderOrderID {
			continue
		}
		if pick == nil || r.CreatedAt.After(pick.CreatedAt) {
			pick = r
		}
	}
	if pick == nil {
		return model.PujaOrder{}, fmt.Errorf("puja transition: %w", repo.ErrNoMatch)
	}
	pick.Status = t.To
	if t.PaymentID != nil {
		pid := *t.PaymentID
		pick.ProviderPaymentID = &pid
	}
	pick.Timeline = append(pick.Timeline, t.Event)
	return *pick, nil
}

func (s *Pujas) ListByAccount(_ context.Context, accountID uuid.UUID, status *model.PujaStatus, page repo.Page) ([]model.PujaOrder, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []model.PujaOrder
	for _, r := range s.rows {
		if r.AccountID == accountID && (status == nil || r.Status == *status) {
			all = append(all, *r)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return window(all, page), len(all), nil
}

func window[T any](all []T, p repo.Page) []T {
	if p.Limit <= 0 {
		return all
	}
	start := p.Offset()
	if start >= len(all) {
		return nil
	}
	end := start + p.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}
