package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAlreadyResolved     = errors.New("market already resolved")
	ErrInvalidOutcome      = errors.New("invalid outcome")
	ErrNoPredictions       = errors.New("no predictions for market")
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotRedeemable       = errors.New("prediction not redeemable")
	ErrMarketClosed        = errors.New("market not open for staking")
	ErrRateLimited         = errors.New("rate limited")
	ErrLockHeld            = errors.New("lock already held")
)
