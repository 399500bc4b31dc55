package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrSigningFailed = errors.New("signing failed")
	ErrLockHeld      = errors.New("lock already held")

	ErrValidation       = errors.New("validation failed")
	ErrNoWallet         = errors.New("no wallet connected")
	ErrTimeout          = errors.New("operation timed out")
	ErrPurchaseInFlight = errors.New("identical purchase already in flight")
	ErrReverted         = errors.New("transaction reverted")
	ErrInvalidCode      = errors.New("invalid access code")
	ErrCodeUsed         = errors.New("access code already used")
)

// ValidationError reports malformed local input. It is raised before any
// network call and matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Contract call phases carried by ContractCallError.
const (
	OpRead     = "read"
	OpSimulate = "simulate"
	OpSend     = "send"
	OpReceipt  = "receipt"
)

// ContractCallError wraps a failed remote read, simulation, send, or receipt
// wait. Err is the unmodified cause.
type ContractCallError struct {
	Op     string
	Method string
	Err    error
}

func (e *ContractCallError) Error() string {
	return fmt.Sprintf("contract %s %s: %v", e.Op, e.Method, e.Err)
}

func (e *ContractCallError) Unwrap() error { return e.Err }
