package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/aggregates/profile"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/entities/transition"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/lifecycle"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/constants"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/serrors"
)

// Kind classifies a ServiceError independent of its code and message.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindAlreadyConverted   Kind = "already_converted"
	KindImmutableRecord    Kind = "immutable_record"
	KindInvalidTransition  Kind = "invalid_transition"
	KindInvalidInput       Kind = "invalid_input"
	KindAggregationFailure Kind = "aggregation_failure"
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Kind    Kind
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// Is matches another ServiceError of the same Kind.
func (e *ServiceError) Is(target error) bool {
	var other *ServiceError
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

var (
	ErrNotFound           = &ServiceError{Kind: KindNotFound, Code: "CRM_NOT_FOUND", Message: "not found"}
	ErrAlreadyConverted   = &ServiceError{Kind: KindAlreadyConverted, Code: "CRM_ALREADY_CONVERTED", Message: "already converted"}
	ErrImmutableRecord    = &ServiceError{Kind: KindImmutableRecord, Code: "CRM_IMMUTABLE_RECORD", Message: "immutable record"}
	ErrInvalidTransition  = &ServiceError{Kind: KindInvalidTransition, Code: "CRM_INVALID_TRANSITION", Message: "invalid transition"}
	ErrInvalidInput       = &ServiceError{Kind: KindInvalidInput, Code: "CRM_INVALID_INPUT", Message: "invalid input"}
	ErrAggregationFailure = &ServiceError{Kind: KindAggregationFailure, Code: "CRM_AGGREGATION_FAILURE", Message: "aggregation failure"}
)

func newServiceError(kind Kind, status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Kind: kind, Cause: cause}
}

func notFound(entity, id string, cause error) *ServiceError {
	return newServiceError(KindNotFound, http.StatusNotFound, "CRM_NOT_FOUND", fmt.Sprintf("%s %s not found", entity, id), cause)
}

func alreadyConverted(message string, cause error) *ServiceError {
	return newServiceError(KindAlreadyConverted, http.StatusConflict, "CRM_ALREADY_CONVERTED", message, cause)
}

func invalidTransition(message string) *ServiceError {
	return newServiceError(KindInvalidTransition, http.StatusUnprocessableEntity, "CRM_INVALID_TRANSITION", message, nil)
}

func invalidInput(message string, cause error) *ServiceError {
	return newServiceError(KindInvalidInput, http.StatusBadRequest, "CRM_INVALID_INPUT", message, cause)
}

func aggregationFailure(message string, cause error) *ServiceError {
	return newServiceError(KindAggregationFailure, http.StatusInternalServerError, "CRM_AGGREGATION_FAILURE", message, cause)
}

// validateInput runs the shared validator over a DTO.
func validateInput(dto any) error {
	if err := constants.Validate.Struct(dto); err != nil {
		return invalidInput(serrors.ProcessValidatorErrors(err).Error(), err)
	}
	return nil
}

// mapRepoError translates repository sentinels into service errors. Errors
// that already are ServiceErrors pass through.
func mapRepoError(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	var (
		immutable *lifecycle.ImmutableError
		status    *lifecycle.StatusError
	)
	switch {
	case errors.As(err, &immutable):
		return newServiceError(KindImmutableRecord, http.StatusConflict, "CRM_IMMUTABLE_RECORD", immutable.Error(), err)
	case errors.As(err, &status):
		return newServiceError(KindInvalidTransition, http.StatusUnprocessableEntity, "CRM_INVALID_TRANSITION", status.Error(), err)
	case errors.Is(err, records.ErrNotFound), errors.Is(err, profile.ErrNotFound):
		return notFound(entity, id, err)
	case errors.Is(err, records.ErrDuplicate), errors.Is(err, transition.ErrDuplicate):
		return alreadyConverted(fmt.Sprintf("%s %s already converted", entity, id), err)
	}
	return err
}

// ErrorCode returns the code of a ServiceError or BaseError in err's chain.
func ErrorCode(err error) string {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return serrors.CodeOf(err)
}
