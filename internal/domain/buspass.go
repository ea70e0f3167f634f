package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type PassTerms struct {
	Price    int64
	MaxUsage int
}

var passTerms = map[PassType]PassTerms{
	PassDaily:   {Price: 50, MaxUsage: 10},
	PassWeekly:  {Price: 300, MaxUsage: 50},
	PassMonthly: {Price: 1000, MaxUsage: 200},
	PassYearly:  {Price: 10000, MaxUsage: 2000},
}

func (pt PassType) Valid() bool {
	_, ok := passTerms[pt]
	return ok
}

func (pt PassType) Terms() (PassTerms, error) {
	t, ok := passTerms[pt]
	if !ok {
		return PassTerms{}, fmt.Errorf("%q: %w", pt, ErrUnknownPassType)
	}
	return t, nil
}

// ValidTo returns the end of a pass of this type starting at from.
// Month and year steps clamp to the last day of the target month.
func (pt PassType) ValidTo(from time.Time) (time.Time, error) {
	switch pt {
	case PassDaily:
		return from.AddDate(0, 0, 1), nil
	case PassWeekly:
		return from.AddDate(0, 0, 7), nil
	case PassMonthly:
		return addMonthsClamped(from, 1), nil
	case PassYearly:
		return addMonthsClamped(from, 12), nil
	}
	return time.Time{}, fmt.Errorf("%q: %w", pt, ErrUnknownPassType)
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// NewBusPass prices a pass by type and computes its validity window.
func NewBusPass(userID uuid.UUID, pt PassType, city string, validFrom time.Time, qrToken string) (*BusPass, error) {
	terms, err := pt.Terms()
	if err != nil {
		return nil, err
	}

	validTo, err := pt.ValidTo(validFrom)
	if err != nil {
		return nil, err
	}

	return &BusPass{
		ID:        uuid.New(),
		UserID:    userID,
		PassType:  pt,
		City:      city,
		ValidFrom: validFrom,
		ValidTo:   validTo,
		Price:     terms.Price,
		Status:    PassActive,
		MaxUsage:  terms.MaxUsage,
		QRToken:   qrToken,
	}, nil
}

// IsValid: active, now within [ValidFrom, ValidTo] and usage left.
func (p *BusPass) IsValid(now time.Time) bool {
	return p.Status == PassActive &&
		!now.Before(p.ValidFrom) &&
		!now.After(p.ValidTo) &&
		(p.MaxUsage == 0 || p.UsageCount < p.MaxUsage)
}

// Use records one ride. The pass repository applies the same guard in a
// single conditional UPDATE so concurrent rides cannot exceed MaxUsage.
func (p *BusPass) Use(now time.Time) error {
	if !p.IsValid(now) {
		return ErrPassInvalid
	}

	p.UsageCount++
	return nil
}

// RemainingUsage is nil for unlimited passes.
func (p *BusPass) RemainingUsage() *int {
	if p.MaxUsage == 0 {
		return nil
	}

	left := max(p.MaxUsage-p.UsageCount, 0)
	return &left
}

func (p *BusPass) Cancel() error {
	if p.Status != PassActive {
		return ErrPassNotActive
	}

	p.Status = PassCancelled
	return nil
}

// EffectiveStatus reports an active pass whose window has ended as expired,
// whether or not the stored status has caught up yet.
func (p *BusPass) EffectiveStatus(now time.Time) PassStatus {
	if p.Status == PassActive && now.After(p.ValidTo) {
		return PassExpired
	}
	return p.Status
}
