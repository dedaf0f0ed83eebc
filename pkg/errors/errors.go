package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"nonprofit-site/backend/ai"
	"nonprofit-site/backend/pkg/i18n"
)

// AppError represents an application error with HTTP status code and error code
type AppError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	// MessageID selects the localized text shown to the client.
	MessageID string         `json:"-"`
	Data      map[string]any `json:"-"`
	Details   any            `json:"details,omitempty"`
	Err       error          `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// WithData sets template data for the localized message.
func (e *AppError) WithData(data map[string]any) *AppError {
	e.Data = data
	return e
}

// Wrap records the underlying cause.
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// NewError creates a new application error
func NewError(statusCode int, code, messageID, message string) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Code:       code,
		MessageID:  messageID,
		Message:    message,
	}
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(code, messageID, message string) *AppError {
	return NewError(http.StatusBadRequest, code, messageID, message)
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(code, messageID, message string) *AppError {
	return NewError(http.StatusNotFound, code, messageID, message)
}

// NewTooManyRequestsError creates a 429 Too Many Requests error
func NewTooManyRequestsError(message string) *AppError {
	return NewError(http.StatusTooManyRequests, "RATE_LIMITED", i18n.MsgRateLimited, message)
}

// NewInternalServerError creates a 500 Internal Server Error
func NewInternalServerError(code, message string) *AppError {
	return NewError(http.StatusInternalServerError, code, i18n.MsgInternalError, message)
}

// Common request errors.
func ErrInvalidJSON(err error) *AppError {
	return NewBadRequestError("INVALID_REQUEST", i18n.MsgInvalidRequest, "request body is not valid JSON").Wrap(err)
}

func ErrSessionNotFound() *AppError {
	return NewNotFoundError("SESSION_NOT_FOUND", i18n.MsgSessionNotFound, "no session for this client")
}

func ErrRequestTooLarge(err error) *AppError {
	return NewError(http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", i18n.MsgRequestTooLarge, "request body too large").Wrap(err)
}

// FromError converts err to an AppError. Bridge errors map to the status the chat
// endpoint promises for each failure kind; anything else becomes a 500.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var maxBytes *http.MaxBytesError
	if stderrors.As(err, &maxBytes) {
		return ErrRequestTooLarge(err)
	}

	var be *ai.Error
	if stderrors.As(err, &be) {
		return fromBridgeError(be)
	}

	return NewInternalServerError("INTERNAL_ERROR", "an unexpected error occurred").Wrap(err)
}

func fromBridgeError(be *ai.Error) *AppError {
	switch be.Kind {
	case ai.KindInvalidInput:
		switch {
		case stderrors.Is(be, ai.ErrEmptyMessage):
			return NewBadRequestError("EMPTY_MESSAGE", i18n.MsgEmptyMessage, "message is empty").Wrap(be)
		case stderrors.Is(be, ai.ErrMessageTooLong):
			return NewBadRequestError("MESSAGE_TOO_LONG", i18n.MsgMessageTooLong, "message is too long").Wrap(be)
		default:
			return NewBadRequestError("INVALID_REQUEST", i18n.MsgInvalidRequest, be.Err.Error()).Wrap(be)
		}
	case ai.KindTimeout:
		return NewError(http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", i18n.MsgTimeout, "intent detection timed out").Wrap(be)
	case ai.KindUnavailable:
		return NewError(http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", i18n.MsgUnavailable, "intent detection unavailable").Wrap(be)
	case ai.KindCanceled:
		return NewError(http.StatusRequestTimeout, "REQUEST_CANCELED", i18n.MsgCanceled, "request canceled by client").Wrap(be)
	default:
		return NewError(http.StatusBadGateway, "UPSTREAM_ERROR", i18n.MsgUpstreamError, "intent detection failed").
			WithDetails(map[string]string{"grpc_code": be.Code.String()}).Wrap(be)
	}
}
