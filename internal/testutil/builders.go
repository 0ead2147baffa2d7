package testutil

import (
	"fmt"
	"time"

	"github.com/target/bulkmail/internal/domain/model"
)

// FindInputs returns n distinct, valid find inputs.
func FindInputs(n int) []model.ItemInput {
	out := make([]model.ItemInput, n)
	for i := range out {
		out[i] = model.ItemInput{
			Name:   fmt.Sprintf("Person %d", i),
			Domain: fmt.Sprintf("company%d.com", i),
		}
	}
	return out
}

// VerifyInputs returns n distinct, valid verify inputs.
func VerifyInputs(n int) []model.ItemInput {
	out := make([]model.ItemInput, n)
	for i := range out {
		out[i] = model.ItemInput{Email: fmt.Sprintf("user%d@example.com", i)}
	}
	return out
}

// JobBuilder provides a fluent interface for building jobs for store tests.
type JobBuilder struct {
	job *model.Job
}

// NewJob starts a pending find job with n items owned by "owner-1".
func NewJob(n int) *JobBuilder {
	return &JobBuilder{job: &model.Job{
		OwnerID:    "owner-1",
		Kind:       model.JobKindFind,
		Status:     model.JobStatusPending,
		Items:      model.NewItems(FindInputs(n)),
		TotalItems: n,
	}}
}

// WithOwner sets the owner.
func (b *JobBuilder) WithOwner(ownerID string) *JobBuilder {
	b.job.OwnerID = ownerID
	return b
}

// WithKind sets the kind and regenerates inputs to match it.
func (b *JobBuilder) WithKind(kind model.JobKind) *JobBuilder {
	b.job.Kind = kind
	if kind == model.JobKindVerify {
		b.job.Items = model.NewItems(VerifyInputs(b.job.TotalItems))
	} else {
		b.job.Items = model.NewItems(FindInputs(b.job.TotalItems))
	}
	return b
}

// WithID sets a fixed id.
func (b *JobBuilder) WithID(id string) *JobBuilder {
	b.job.ID = id
	return b
}

// Build returns the constructed job.
func (b *JobBuilder) Build() *model.Job {
	return b.job
}

// AccountBuilder builds credit accounts.
type AccountBuilder struct {
	acct model.CreditAccount
}

// NewAccount starts an account for ownerID with the given pools and no plan expiry.
func NewAccount(ownerID string, find, verify int64) *AccountBuilder {
	return &AccountBuilder{acct: model.CreditAccount{
		OwnerID:       ownerID,
		FindCredits:   find,
		VerifyCredits: verify,
	}}
}

// ExpiringAt sets the plan expiry.
func (b *AccountBuilder) ExpiringAt(t time.Time) *AccountBuilder {
	b.acct.PlanExpiresAt = &t
	return b
}

// Build returns the account.
func (b *AccountBuilder) Build() model.CreditAccount {
	return b.acct
}
