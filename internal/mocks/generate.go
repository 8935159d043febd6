// Package mocks holds gomock doubles for the use case ports.
//
// To regenerate after interface changes, run:
//
//	go generate ./internal/mocks
package mocks

// Generate MockDeliverer for the usecase Deliverer port (Send).
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=deliverer_mock.go fit-report/internal/usecase Deliverer

// Generate MockGenerator for the usecase Generator port (Generate).
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=generator_mock.go fit-report/internal/usecase Generator
