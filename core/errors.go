package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	IntakeErrorBadInput         = "INTAKE_BAD_INPUT"
	IntakeErrorCircuitOpen      = "INTAKE_CIRCUIT_OPEN"
	IntakeErrorSignatureInvalid = "INTAKE_SIGNATURE_INVALID"
	IntakeErrorHandlerNotFound  = "INTAKE_HANDLER_NOT_FOUND"
	IntakeErrorHandlerTerminal  = "INTAKE_HANDLER_TERMINAL"
	IntakeErrorHandlerTransient = "INTAKE_HANDLER_TRANSIENT"
	IntakeErrorPersistence      = "INTAKE_PERSISTENCE_ERROR"
	IntakeErrorInternal         = "INTAKE_INTERNAL_ERROR"
)

type ErrorMapper func(err error) *goerrors.Error

// DefaultErrorMapper normalizes arbitrary errors into the intake error
// envelope (category, HTTP code, text code).
var DefaultErrorMapper ErrorMapper = intakeErrorMapper

func intakeErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureIntakeErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "circuit") && strings.Contains(msg, "open"):
		return newIntakeError(err.Error(), goerrors.CategoryRateLimit, IntakeErrorCircuitOpen)
	case strings.Contains(msg, "signature"):
		return newIntakeError(err.Error(), goerrors.CategoryAuth, IntakeErrorSignatureInvalid)
	case strings.Contains(msg, "handler") && strings.Contains(msg, "not registered"):
		return newIntakeError(err.Error(), goerrors.CategoryNotFound, IntakeErrorHandlerNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newIntakeError(err.Error(), goerrors.CategoryBadInput, IntakeErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureIntakeErrorEnvelope(mapped)
}

func newIntakeError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureIntakeErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureIntakeErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = intakeHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultIntakeTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultIntakeTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return IntakeErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return IntakeErrorSignatureInvalid
	case goerrors.CategoryNotFound:
		return IntakeErrorHandlerNotFound
	case goerrors.CategoryRateLimit:
		return IntakeErrorCircuitOpen
	case goerrors.CategoryOperation:
		return IntakeErrorHandlerTransient
	default:
		return IntakeErrorInternal
	}
}

func intakeHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryOperation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
