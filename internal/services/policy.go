package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/trovia/backend/internal/models"
)

// PolicyConfig holds the knobs for the flag enforcement engine. Defaults
// come from DefaultPolicyConfig; deployments override via env (see config).
type PolicyConfig struct {
	WindowDays          int
	BuyerThreshold      int
	SellerThreshold     int
	BaseLockDays        int
	MaxLockDays         int
	AutoUnlockOnResolve bool
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		WindowDays:          30,
		BuyerThreshold:      3,
		SellerThreshold:     3,
		BaseLockDays:        2,
		MaxLockDays:         60,
		AutoUnlockOnResolve: true,
	}
}

func (c PolicyConfig) threshold(role string) int {
	if role == models.RoleSeller {
		return c.SellerThreshold
	}
	return c.BuyerThreshold
}

// PolicyResult reports the outcome of one evaluation pass.
type PolicyResult struct {
	Locked   bool       `json:"locked"`
	Count    int64      `json:"count"`
	Until    *time.Time `json:"until,omitempty"`
	Strikes  int        `json:"strikes,omitempty"`
	Unlocked bool       `json:"unlocked,omitempty"`
}

// FlagCounter is the read side of the flag store the evaluator needs.
type FlagCounter interface {
	// CountQualifying counts non-dismissed flags against the user in the
	// given role created at or after since.
	CountQualifying(ctx context.Context, userID, role string, since time.Time) (int64, error)
}

// UserStore is the lock-state accessor. SaveLockState must write is_active
// and flag_lock as one unit; the evaluator is the only writer of either.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	SaveLockState(ctx context.Context, user *models.User) error
}

// PolicyEvaluator recomputes a user's lock state from the full qualifying
// flag set. It is stateless with respect to which flag triggered it, so
// out-of-order evaluations converge to the same decision.
//
// There is no per-user mutual exclusion: two concurrent evaluations can both
// read the same pre-increment count and both lock, last write wins. This
// mirrors the observed production behavior; sequential repeats are
// idempotent because a live unexpired lock is never re-triggered.
type PolicyEvaluator struct {
	flags FlagCounter
	users UserStore
	cfg   PolicyConfig
	now   func() time.Time
}

func NewPolicyEvaluator(flags FlagCounter, users UserStore, cfg PolicyConfig) *PolicyEvaluator {
	return &PolicyEvaluator{
		flags: flags,
		users: users,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate re-counts qualifying flags for (userID, role) and applies the
// lock/unlock policy. Returns nil when the user does not exist.
func (e *PolicyEvaluator) Evaluate(ctx context.Context, userID, role string) (*PolicyResult, error) {
	now := e.now()
	threshold := e.cfg.threshold(role)
	since := now.Add(-time.Duration(e.cfg.WindowDays) * 24 * time.Hour)

	count, err := e.flags.CountQualifying(ctx, userID, role, since)
	if err != nil {
		return nil, err
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if err == ErrUserNotFound {
			return nil, nil
		}
		return nil, err
	}

	lock := user.FlagLock

	// Auto-unlock: only once the scheduled expiry has passed. The lock
	// duration is a commitment, not advisory — dropping below threshold
	// mid-lock does not lift it early.
	if e.cfg.AutoUnlockOnResolve && lock.Locked &&
		count < int64(threshold) &&
		lock.Until != nil && !lock.Until.After(now) {

		reviewed := now
		user.FlagLock = models.FlagLock{
			Locked:         false,
			Reason:         "",
			Since:          nil,
			Until:          nil,
			Strikes:        lock.Strikes,
			LastReviewedAt: &reviewed,
		}
		user.IsActive = true
		if err := e.users.SaveLockState(ctx, user); err != nil {
			return nil, err
		}
		log.Printf("[policy] auto-unlocked user=%s role=%s count=%d strikes=%d", userID, role, count, lock.Strikes)
		return &PolicyResult{Locked: false, Count: count, Unlocked: true}, nil
	}

	// Lock trigger. A live unexpired lock is left alone so repeated
	// evaluation with no flag change never double-counts strikes; an
	// expired lock still over threshold is refreshed with a new strike.
	if count >= int64(threshold) &&
		(!lock.Locked || lock.Until == nil || !lock.Until.After(now)) {

		strikes := lock.Strikes + 1
		until := now.Add(time.Duration(e.lockDurationDays(strikes)) * 24 * time.Hour)
		since := now
		reviewed := now

		user.FlagLock = models.FlagLock{
			Locked:         true,
			Reason:         fmt.Sprintf("Exceeded %d flags in %d days", threshold, e.cfg.WindowDays),
			Since:          &since,
			Until:          &until,
			Strikes:        strikes,
			LastReviewedAt: &reviewed,
		}
		user.IsActive = false
		if err := e.users.SaveLockState(ctx, user); err != nil {
			return nil, err
		}
		log.Printf("[policy] locked user=%s role=%s count=%d strikes=%d until=%s", userID, role, count, strikes, until.Format(time.RFC3339))
		return &PolicyResult{Locked: true, Count: count, Until: &until, Strikes: strikes}, nil
	}

	// Below threshold with no unlock condition: report, persist nothing.
	res := &PolicyResult{Locked: lock.Locked, Count: count}
	if lock.Locked {
		res.Until = lock.Until
		res.Strikes = lock.Strikes
	}
	return res, nil
}

// lockDurationDays doubles per repeat strike, capped: 2, 4, 8, 16, 32, 60.
func (e *PolicyEvaluator) lockDurationDays(strikes int) int {
	shift := strikes - 1
	if shift < 0 {
		shift = 0
	}
	// Guard the shift itself before comparing against the cap.
	if shift > 30 {
		return e.cfg.MaxLockDays
	}
	days := e.cfg.BaseLockDays << uint(shift)
	if days > e.cfg.MaxLockDays {
		return e.cfg.MaxLockDays
	}
	return days
}
