// Package apierr defines the error kinds raised while translating an
// OpenAPI document and while dispatching requests for resolved fields.
package apierr

import (
	stderrors "errors"
	"fmt"

	"github.com/speakeasy-api/openapi/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

const (
	// ErrConfiguration is a malformed or self-contradictory input document,
	// an unresolvable naming conflict or an empty schema. Fatal at
	// translation time.
	ErrConfiguration = errors.Error("configuration error")
	// ErrSpecification is an input document that could not be loaded.
	ErrSpecification = errors.Error("specification error")
	// ErrAuthentication is a required credential missing at dispatch time.
	ErrAuthentication = errors.Error("authentication error")
	// ErrProtocol is a response that does not match its declared contract.
	ErrProtocol = errors.Error("protocol error")
	// ErrValidation is a caller argument that violates a runtime contract.
	ErrValidation = errors.Error("validation error")
	// ErrSchemaMismatch is response data that matches no member of a union.
	ErrSchemaMismatch = errors.Error("schema mismatch")
	// ErrRequestFailed is a response with a status outside 200-299.
	ErrRequestFailed = errors.Error("request failed")
)

// Codes reported in the "code" extension of field errors.
const (
	CodeConfiguration  = "CONFIGURATION_ERROR"
	CodeAuthentication = "AUTHENTICATION_ERROR"
	CodeProtocol       = "PROTOCOL_ERROR"
	CodeValidation     = "VALIDATION_ERROR"
	CodeSchemaMismatch = "SCHEMA_MISMATCH"
	CodeRequestFailed  = "REQUEST_FAILED"
)

// Configuration wraps a formatted message as ErrConfiguration.
func Configuration(format string, args ...any) error {
	return ErrConfiguration.Wrap(fmt.Errorf(format, args...))
}

func Specification(format string, args ...any) error {
	return ErrSpecification.Wrap(fmt.Errorf(format, args...))
}

func Authentication(format string, args ...any) error {
	return ErrAuthentication.Wrap(fmt.Errorf(format, args...))
}

func Protocol(format string, args ...any) error {
	return ErrProtocol.Wrap(fmt.Errorf(format, args...))
}

func Validation(format string, args ...any) error {
	return ErrValidation.Wrap(fmt.Errorf(format, args...))
}

func SchemaMismatch(format string, args ...any) error {
	return ErrSchemaMismatch.Wrap(fmt.Errorf(format, args...))
}

// Code returns the extension code for err, or "" for errors outside the
// taxonomy (transport failures).
func Code(err error) string {
	switch {
	case stderrors.Is(err, ErrConfiguration):
		return CodeConfiguration
	case stderrors.Is(err, ErrAuthentication):
		return CodeAuthentication
	case stderrors.Is(err, ErrProtocol):
		return CodeProtocol
	case stderrors.Is(err, ErrValidation):
		return CodeValidation
	case stderrors.Is(err, ErrSchemaMismatch):
		return CodeSchemaMismatch
	case stderrors.Is(err, ErrRequestFailed):
		return CodeRequestFailed
	}
	return ""
}

// Field turns err into a field-level GraphQL error at path. Errors that
// already are field errors keep their message and extensions; the path is
// set when missing.
func Field(path ast.Path, err error) *gqlerror.Error {
	var gerr *gqlerror.Error
	if stderrors.As(err, &gerr) {
		if gerr.Path == nil {
			gerr.Path = path
		}
		return gerr
	}
	out := &gqlerror.Error{
		Err:     err,
		Message: err.Error(),
		Path:    path,
	}
	if code := Code(err); code != "" {
		out.Extensions = map[string]interface{}{"code": code}
	}
	return out
}

// RequestFailed builds the field error for a non-2xx response. detail is
// merged into the extensions when non-nil.
func RequestFailed(path ast.Path, message string, detail map[string]interface{}) *gqlerror.Error {
	ext := map[string]interface{}{"code": CodeRequestFailed}
	for k, v := range detail {
		ext[k] = v
	}
	return &gqlerror.Error{
		Err:        ErrRequestFailed.Wrap(stderrors.New(message)),
		Message:    message,
		Path:       path,
		Extensions: ext,
	}
}
