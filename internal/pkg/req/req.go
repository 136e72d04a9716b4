/*
Package req provides helper functions for HTTP request parsing and data binding.

It decodes JSON bodies strictly, enforces a body size limit and validates the bound struct with
go-playground/validator, so handlers only ever see well-formed input.
*/
package req

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"fullchat/internal/pkg/errs"
	"fullchat/internal/pkg/logx"
)

// MaxJSONBodySize defines the maximum allowed size (64 KB) of a JSON request body.
const MaxJSONBodySize int64 = 64 << 10

// validate is shared; validator caches struct metadata and is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	return validate
}

// BindJSON binds the JSON request body to dst and validates it using its `validate` tags.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.NewError(errs.ErrRequestEntityTooLarge)
		}
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				logx.Info("Request validation failed", "field", fe.Field(), "tag", fe.Tag())
			}
		}
		return errs.NewError(errs.ErrInvalidParams)
	}

	return nil
}
