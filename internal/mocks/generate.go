// Package mocks provides gomock implementations of the ports in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	ledger := mocks.NewMockCreditLedger(ctrl)
//	ledger.EXPECT().CheckAndDebit(gomock.Any(), gomock.Any()).Return(true, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/target/bulkmail/internal/core JobRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_recovery_repository_mock.go github.com/target/bulkmail/internal/core JobRecoveryRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=credit_ledger_mock.go github.com/target/bulkmail/internal/core CreditLedger
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=credit_account_repository_mock.go github.com/target/bulkmail/internal/core CreditAccountRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=lookup_client_mock.go github.com/target/bulkmail/internal/core LookupClient
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_trigger_mock.go github.com/target/bulkmail/internal/core JobTrigger
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=idempotency_store_mock.go github.com/target/bulkmail/internal/core IdempotencyStore
