package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrCheckNotFound       = errors.New("check not found")
	ErrRulePackNotFound    = errors.New("rule pack not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInconsistentState   = errors.New("inconsistent state")
	ErrConflict            = errors.New("write conflict")
	ErrTemporary           = errors.New("temporary failure")
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

func errNegative(field string) error {
	return fmt.Errorf("%s must be >= 0", field)
}

func errRequired(field string) error {
	return fmt.Errorf("%s is required", field)
}

func errEnum(field, value string) error {
	return fmt.Errorf("unknown %s value %q", field, value)
}
