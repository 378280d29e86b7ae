package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition  = errors.New("invalid session transition")
	ErrNotFound           = errors.New("entity not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrAlreadyScoring     = errors.New("scoring already in progress")
	ErrAnalysisCapability = errors.New("analysis capability failure")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTemporary          = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
