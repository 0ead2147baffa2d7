package model

import (
	"encoding/json"
	"time"
)

// CreditAccount holds the two credit pools of an owner.
type CreditAccount struct {
	OwnerID       string     `json:"owner_id"                  db:"owner_id"`
	FindCredits   int64      `json:"find_credits"              db:"find_credits"`
	VerifyCredits int64      `json:"verify_credits"            db:"verify_credits"`
	PlanExpiresAt *time.Time `json:"plan_expires_at,omitempty" db:"plan_expires_at"`
	UpdatedAt     time.Time  `json:"updated_at"                db:"updated_at"`
}

// Available returns the combined balance usable by either kind.
func (a *CreditAccount) Available() int64 {
	return a.FindCredits + a.VerifyCredits
}

// PlanExpired reports whether the plan lapsed at or before now.
// A nil expiry means the plan does not expire.
func (a *CreditAccount) PlanExpired(now time.Time) bool {
	return a.PlanExpiresAt != nil && !now.Before(*a.PlanExpiresAt)
}

// CreditOperation names the work a transaction paid for.
type CreditOperation string

const (
	CreditOperationBulkFind   CreditOperation = "bulk_find"
	CreditOperationBulkVerify CreditOperation = "bulk_verify"
)

// OperationFor maps a job kind to its ledger operation.
func OperationFor(kind JobKind) CreditOperation {
	if kind == JobKindVerify {
		return CreditOperationBulkVerify
	}
	return CreditOperationBulkFind
}

// CreditTransaction is one append-only ledger row.
type CreditTransaction struct {
	ID        string          `json:"id"         db:"id"`
	OwnerID   string          `json:"owner_id"   db:"owner_id"`
	Amount    int64           `json:"amount"     db:"amount"`
	Operation CreditOperation `json:"operation"  db:"operation"`
	Metadata  json.RawMessage `json:"metadata"   db:"metadata"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// JobTransactionMetadata is the metadata written with a job's summary transaction.
type JobTransactionMetadata struct {
	JobID     string `json:"job_id"`
	Bulk      bool   `json:"bulk"`
	ItemCount int    `json:"item_count"`
}

// RecordTransactionRequest describes a ledger append.
type RecordTransactionRequest struct {
	OwnerID   string
	Amount    int64
	Operation CreditOperation
	Metadata  json.RawMessage
}

// DebitRequest asks the ledger to take Amount credits for work of Kind.
type DebitRequest struct {
	OwnerID string
	Kind    JobKind
	Amount  int64
}
