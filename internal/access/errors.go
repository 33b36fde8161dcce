package access

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("resource conflict")

	// ErrIntegrity marks corrupted configuration: a role-hierarchy cycle or a
	// dangling role/profile reference. Callers must surface it to an operator
	// instead of folding it into an ordinary deny.
	ErrIntegrity = errors.New("integrity violation")
)
