package model

import "encoding/json"

// LookupStatus is the normalized outcome reported by the finder/verifier.
type LookupStatus string

const (
	LookupStatusValid   LookupStatus = "valid"
	LookupStatusInvalid LookupStatus = "invalid"
	LookupStatusRisky   LookupStatus = "risky"
	LookupStatusError   LookupStatus = "error"
)

// Valid returns true if the LookupStatus is a known value.
func (s LookupStatus) Valid() bool {
	switch s {
	case LookupStatusValid, LookupStatusInvalid, LookupStatusRisky, LookupStatusError:
		return true
	}
	return false
}

// Succeeded reports whether an item of the given kind should be marked
// completed. A find only succeeds when an address was found; invalid means
// none was. Every verify verdict other than error is an answer about the
// address, so invalid and risky complete the item.
func (s LookupStatus) Succeeded(kind JobKind) bool {
	if kind == JobKindFind {
		return s == LookupStatusValid
	}
	return s == LookupStatusValid || s == LookupStatusInvalid || s == LookupStatusRisky
}

// LookupResult is the common shape for find and verify answers.
type LookupResult struct {
	Status     LookupStatus    `json:"status"`
	Email      string          `json:"email,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}
