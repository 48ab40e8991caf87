package middleware

import (
	"encoding/base64"
	"net/http"

	"github.com/pb33f/libopenapi"
	validator "github.com/pb33f/libopenapi-validator"
)

// RequestValidator checks HTTP requests against an OpenAPI document. The
// runtime uses it on the requests it is about to send to the backend.
type RequestValidator struct {
	validator validator.Validator
}

// NewRequestValidator creates a validator from OpenAPI document bytes.
func NewRequestValidator(spec []byte) (*RequestValidator, error) {
	doc, err := libopenapi.NewDocument(spec)
	if err != nil {
		return nil, err
	}

	v, errs := validator.NewValidator(doc)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return &RequestValidator{validator: v}, nil
}

// NewRequestValidatorFromBase64 creates a validator from a base64-encoded
// document.
func NewRequestValidatorFromBase64(encoded string) (*RequestValidator, error) {
	spec, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	return NewRequestValidator(spec)
}

// Validate returns a *ValidationError describing every problem with r.
func (v *RequestValidator) Validate(r *http.Request) error {
	valid, errs := v.validator.ValidateHttpRequestSync(r)
	if valid {
		return nil
	}
	return &ValidationError{
		StatusCode: http.StatusBadRequest,
		Message:    "request validation failed",
		Errors:     errs,
	}
}
