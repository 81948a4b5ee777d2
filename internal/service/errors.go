package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/hudoor/internal/repository"
	appErrors "github.com/noah-isme/hudoor/pkg/errors"
	"github.com/noah-isme/hudoor/pkg/kvstore"
)

// storeError maps repository and store failures onto API errors. A full
// store becomes STORAGE_QUOTA_EXCEEDED so the shell can show a blocking
// alert; the in-memory state has already been left untouched by then.
func storeError(err error, message string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, kvstore.ErrQuotaExceeded):
		return appErrors.Wrap(err, appErrors.ErrStorageQuota.Code, appErrors.ErrStorageQuota.Status, appErrors.ErrStorageQuota.Message)
	case errors.Is(err, repository.ErrNotFound):
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, notFoundMessage(err))
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, repository.ErrGradeNotFound):
		return "grade not found"
	case errors.Is(err, repository.ErrClassNotFound):
		return "class not found"
	case errors.Is(err, repository.ErrStudentNotFound):
		return "student not found"
	default:
		return appErrors.ErrNotFound.Message
	}
}

// invalid wraps a validator failure, naming the first offending field.
func invalid(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		msg := fmt.Sprintf("%s is invalid", lowerFirst(fe.Field()))
		if fe.Tag() == "required" {
			msg = fmt.Sprintf("%s is required", lowerFirst(fe.Field()))
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, msg)
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
