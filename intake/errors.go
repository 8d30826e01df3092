package intake

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-intake/core"
)

func intakeError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func intakeWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return intakeError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func intakeBadInput(message string, metadata map[string]any) error {
	return intakeError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.IntakeErrorBadInput,
		metadata,
	)
}

func intakeInternal(message string, metadata map[string]any) error {
	return intakeError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.IntakeErrorInternal,
		metadata,
	)
}

func intakePersistence(source error, message string, metadata map[string]any) error {
	return intakeWrapError(
		source,
		goerrors.CategoryInternal,
		message,
		http.StatusInternalServerError,
		core.IntakeErrorPersistence,
		metadata,
	)
}
