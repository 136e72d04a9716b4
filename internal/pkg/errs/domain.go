/*
Package errs provides custom error types and application-level error code constants.

This file maps errors returned by the chat core and the account service onto CustomErrors.
*/
package errs

import (
	"errors"

	"fullchat/internal/app/account"
	"fullchat/internal/app/chat"
	"fullchat/internal/pkg/logx"
)

// FromDomain converts an error returned by the application layer into a *CustomError.
// A nil error yields nil; anything unrecognised becomes ErrUnknown.
func FromDomain(err error) *CustomError {
	if err == nil {
		return nil
	}

	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr
	}

	var validationErr *chat.ValidationError
	if errors.As(err, &validationErr) {
		return fromValidation(validationErr)
	}

	var storeErr *chat.StoreError
	if errors.As(err, &storeErr) {
		logx.Error(storeErr.Err, "Store operation failed", "op", storeErr.Op)
		return NewError(ErrStoreFailed)
	}

	switch {
	case errors.Is(err, chat.ErrUnauthenticated):
		return NewError(ErrUnauthorized)
	case errors.Is(err, account.ErrInvalidCredentials):
		return NewError(ErrInvalidCredentials)
	case errors.Is(err, account.ErrUsernameTaken):
		return NewError(ErrUserAlreadyExists)
	case errors.Is(err, account.ErrInvalidUsername), errors.Is(err, account.ErrInvalidPassword):
		return NewError(ErrInvalidParams)
	}

	return NewError(ErrUnknown, err)
}

func fromValidation(err *chat.ValidationError) *CustomError {
	switch err.Reason {
	case chat.ReasonEmpty:
		return NewError(ErrMessageEmpty)
	case chat.ReasonTooLong:
		if err.Limit > 0 {
			return NewError(ErrMessageContentTooLong, err.Limit)
		}
		tooLong := NewError(ErrMessageContentTooLong, 0)
		tooLong.Message = "Message is too long."
		return tooLong
	case chat.ReasonMalformed:
		return NewError(ErrMessageMalformed)
	default:
		return NewError(ErrInvalidParams)
	}
}
