// Package model defines the data models for the poke rewards backend.
package model

import "time"

// Account represents a user account in the rewards system.
// Balance is derived state: it is mutated only through ledger transactions
// and must always equal the sum of the account's completed transaction
// amounts. TotalEarned and TotalWithdrawn are monotonic counters.
type Account struct {
	ID             int64     `db:"id"`
	DisplayName    string    `db:"display_name"`
	Balance        int64     `db:"balance"`
	TotalEarned    int64     `db:"total_earned"`
	TotalWithdrawn int64     `db:"total_withdrawn"`
	Active         bool      `db:"active"`
	LastSeen       time.Time `db:"last_seen"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// DailyQuota is one account's poke quota record for one calendar day,
// keyed by a day string in the reference timezone. Invariants:
// SentCount == len(SentTo), ReceivedCount == len(ReceivedFrom), and both
// counts are bounded by the configured daily limit. Records for past days
// are immutable history.
type DailyQuota struct {
	AccountID     int64     `db:"account_id"`
	DayKey        string    `db:"day_key"`
	SentCount     int       `db:"sent_count"`
	ReceivedCount int       `db:"received_count"`
	SentTo        []int64   `db:"sent_to"`
	ReceivedFrom  []int64   `db:"received_from"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// QuotaDirection selects which side of a quota record an operation touches.
type QuotaDirection string

const (
	DirectionSend    QuotaDirection = "send"
	DirectionReceive QuotaDirection = "receive"
)

// Attestation is a single-use token proving the ad-view side task was
// completed for a specific (actor, target) pair. Consumed exactly once;
// invalid after consumption or expiry.
type Attestation struct {
	Token     string    `db:"token"`
	ActorID   int64     `db:"actor_id"`
	TargetID  int64     `db:"target_id"`
	IssuedAt  time.Time `db:"issued_at"`
	ExpiresAt time.Time `db:"expires_at"`
	Consumed  bool      `db:"consumed"`
}

// Action is the committed, immutable record of one poke between two
// accounts. Never updated or deleted.
type Action struct {
	ID           string    `db:"id"`
	ActorID      int64     `db:"actor_id"`
	TargetID     int64     `db:"target_id"`
	ActorPoints  int64     `db:"actor_points"`
	TargetPoints int64     `db:"target_points"`
	DayKey       string    `db:"day_key"`
	CreatedAt    time.Time `db:"created_at"`
}

// Transaction is one append-only ledger entry for one account.
// BalanceAfter == BalanceBefore + Amount for every row, and within an
// account each row's BalanceBefore equals its predecessor's BalanceAfter.
// Corrections are new reversing rows, never edits.
type Transaction struct {
	ID             int64     `db:"id"`
	AccountID      int64     `db:"account_id"`
	Kind           string    `db:"kind"`
	Amount         int64     `db:"amount"`
	BalanceBefore  int64     `db:"balance_before"`
	BalanceAfter   int64     `db:"balance_after"`
	Status         string    `db:"status"`
	Description    string    `db:"description"`
	Reference      *string   `db:"reference"`
	IdempotencyKey string    `db:"idempotency_key"`
	CreatedAt      time.Time `db:"created_at"`
}

// Transaction kinds for categorizing balance changes.
const (
	KindActionReward    = "action_reward"    // Poke reward for either party
	KindSignupBonus     = "signup_bonus"     // Bonus on registration
	KindReferralBonus   = "referral_bonus"   // Referral reward
	KindMilestoneReward = "milestone_reward" // Milestone achievement reward
	KindAdminAdjustment = "admin_adjustment" // Privileged manual adjustment
	KindWithdrawal      = "withdrawal"       // Cash-out debit
)

// Transaction statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusReversed  = "reversed"
)

// EarningKinds returns the transaction kinds that count towards the
// monotonic total_earned counter.
func EarningKinds() []string {
	return []string{KindActionReward, KindSignupBonus, KindReferralBonus, KindMilestoneReward}
}

// QuotaStatus is the per-direction remaining-quota view exposed to clients.
type QuotaStatus struct {
	DayKey            string `json:"day_key"`
	SentToday         int    `json:"sent_today"`
	ReceivedToday     int    `json:"received_today"`
	RemainingSends    int    `json:"remaining_sends"`
	RemainingReceives int    `json:"remaining_receives"`
}

// BalanceStatus is the wallet view exposed to clients.
type BalanceStatus struct {
	Balance        int64 `json:"balance"`
	TotalEarned    int64 `json:"total_earned"`
	TotalWithdrawn int64 `json:"total_withdrawn"`
}

// Snapshot is a point-in-time copy of one account's quota and balance,
// tagged with the server time it was derived from. Clients replace it
// wholesale on every successful reconciliation and never merge fields.
type Snapshot struct {
	AccountID  int64         `json:"account_id"`
	Quota      QuotaStatus   `json:"quota"`
	Balance    BalanceStatus `json:"balance"`
	ServerTime time.Time     `json:"server_time"`
}
