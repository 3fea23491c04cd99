// Package credits implements the post credit economy: a daily allowance that resets on calendar
// day rollover, purchased top-ups, and an atomic consume operation.
package credits

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInsufficientCredits is returned when a balance cannot cover a charge. The balance is unchanged.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("credit amount must be a positive integer")
	// ErrUnknownUser is returned when the store has no balance for the user.
	ErrUnknownUser = errors.New("unknown user")
)

// Policy describes the allowance and the calendar used for daily resets.
type Policy struct {
	DailyAllowance int
	Cost           int
	Location       *time.Location
}

// Window is a calendar day [Start, End) in the policy location.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Window returns the calendar day containing now.
func (p Policy) Window(now time.Time) Window {
	local := now.In(p.location())
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.location())
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// NeedsReset compares calendar dates, not elapsed time: a reset at 23:59 is stale at 00:00.
func (p Policy) NeedsReset(lastReset, now time.Time) bool {
	return !p.Window(now).Contains(lastReset)
}

// Charge is everything a store needs to reset and consume in one atomic unit.
type Charge struct {
	Amount    int
	Allowance int
	Window    Window
	Now       time.Time
}

// Store persists balances. Consume must be a single conditional decrement.
type Store interface {
	ResetIfStale(ctx context.Context, userID string, window Window, allowance int, now time.Time) (bool, error)
	Consume(ctx context.Context, userID string, amount int) (int, error)
	AddPurchased(ctx context.Context, userID string, amount int) (int, error)
	Balance(ctx context.Context, userID string) (int, error)
}

// Ledger applies a Policy over a Store.
type Ledger struct {
	Store  Store
	Policy Policy
	Now    func() time.Time
}

// NewLedger constructs a Ledger using the wall clock.
func NewLedger(store Store, policy Policy) *Ledger {
	return &Ledger{Store: store, Policy: policy, Now: time.Now}
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// PostCost is the charge for creating a post.
func (l *Ledger) PostCost() int {
	return l.Policy.Cost
}

// Charge builds the atomic charge for amount at the current time.
func (l *Ledger) Charge(amount int) Charge {
	now := l.now()
	return Charge{
		Amount:    amount,
		Allowance: l.Policy.DailyAllowance,
		Window:    l.Policy.Window(now),
		Now:       now,
	}
}

// ResetIfNewDay restores the daily allowance when the last reset happened on another calendar day.
func (l *Ledger) ResetIfNewDay(ctx context.Context, userID string) (bool, error) {
	now := l.now()
	return l.Store.ResetIfStale(ctx, userID, l.Policy.Window(now), l.Policy.DailyAllowance, now)
}

// Consume resets if needed, then decrements amount or fails with ErrInsufficientCredits.
func (l *Ledger) Consume(ctx context.Context, userID string, amount int) (int, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}
	if _, err := l.ResetIfNewDay(ctx, userID); err != nil {
		return 0, err
	}
	return l.Store.Consume(ctx, userID, amount)
}

// AddPurchased tops up the balance without an upper bound.
func (l *Ledger) AddPurchased(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if _, err := l.ResetIfNewDay(ctx, userID); err != nil {
		return 0, err
	}
	return l.Store.AddPurchased(ctx, userID, amount)
}

// Balance returns the spendable balance after applying any pending daily reset.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	if _, err := l.ResetIfNewDay(ctx, userID); err != nil {
		return 0, err
	}
	return l.Store.Balance(ctx, userID)
}
