package main

import (
	"errors"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/services"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK         = 0
	exitValidation = 2
	exitUsage      = 3
	exitDB         = 4
	exitNotFound   = 5
	exitConflict   = 6
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

// exitCode maps an error to the process exit status. Service errors are
// classified by kind.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	switch {
	case errors.Is(err, services.ErrNotFound):
		return exitNotFound
	case errors.Is(err, services.ErrAlreadyConverted), errors.Is(err, services.ErrImmutableRecord):
		return exitConflict
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrInvalidInput):
		return exitValidation
	}
	return 1
}
