package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on Code so that derived copies compare equal to their sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithDetails(details any) *AppError {
	c := *e
	c.Details = details
	return &c
}

func (e *AppError) WithError(err error) *AppError {
	c := *e
	c.Err = err
	return &c
}

func (e *AppError) WithMessage(message string) *AppError {
	c := *e
	c.Message = message
	return &c
}

func (e *AppError) WithMessagef(format string, args ...any) *AppError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// Kind groups codes into the failure classes callers branch on.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindNoChange     Kind = "no_change"
	KindUpstream     Kind = "upstream_unavailable"
	KindPersistence  Kind = "persistence"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindInternal     Kind = "internal"
)

var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Not allowed for this user",
		HTTPStatus: http.StatusForbidden,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Malformed request",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrValidation = &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    "Invalid input",
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrPortfolioNotFound = &AppError{
		Code:       "PORTFOLIO_NOT_FOUND",
		Message:    "Portfolio not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrAssetNotFound = &AppError{
		Code:       "ASSET_NOT_FOUND",
		Message:    "Asset not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrLotNotFound = &AppError{
		Code:       "LOT_NOT_FOUND",
		Message:    "Lot not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrSymbolNotFound = &AppError{
		Code:       "SYMBOL_NOT_FOUND",
		Message:    "Symbol not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrAssetNotInPortfolio = &AppError{
		Code:       "ASSET_NOT_IN_PORTFOLIO",
		Message:    "Asset is not part of this portfolio",
		HTTPStatus: http.StatusNotFound,
	}

	ErrConflict = &AppError{
		Code:       "CONFLICT",
		Message:    "Resource already exists",
		HTTPStatus: http.StatusConflict,
	}

	ErrPortfolioNameTaken = &AppError{
		Code:       "PORTFOLIO_NAME_TAKEN",
		Message:    "A portfolio with this name already exists",
		HTTPStatus: http.StatusConflict,
	}

	ErrLotsStillPresent = &AppError{
		Code:       "LOTS_STILL_PRESENT",
		Message:    "Lots still reference this asset in the portfolio",
		HTTPStatus: http.StatusConflict,
	}

	ErrNoChange = &AppError{
		Code:       "NO_CHANGES_DETECTED",
		Message:    "No changes detected",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUpstreamUnavailable = &AppError{
		Code:       "UPSTREAM_UNAVAILABLE",
		Message:    "Market data provider unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrPersistence = &AppError{
		Code:       "PERSISTENCE_ERROR",
		Message:    "Failed to read or write data",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrRateLimited = &AppError{
		Code:       "RATE_LIMITED",
		Message:    "Too many requests, please try again later",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
	}
)

var kinds = map[string]Kind{
	ErrUnauthorized.Code:        KindUnauthorized,
	ErrForbidden.Code:           KindForbidden,
	ErrBadRequest.Code:          KindValidation,
	ErrValidation.Code:          KindValidation,
	ErrNotFound.Code:            KindNotFound,
	ErrPortfolioNotFound.Code:   KindNotFound,
	ErrAssetNotFound.Code:       KindNotFound,
	ErrLotNotFound.Code:         KindNotFound,
	ErrSymbolNotFound.Code:      KindNotFound,
	ErrAssetNotInPortfolio.Code: KindNotFound,
	ErrConflict.Code:            KindConflict,
	ErrPortfolioNameTaken.Code:  KindConflict,
	ErrLotsStillPresent.Code:    KindConflict,
	ErrNoChange.Code:            KindNoChange,
	ErrUpstreamUnavailable.Code: KindUpstream,
	ErrPersistence.Code:         KindPersistence,
}

// KindOf classifies err. Errors that are not an *AppError are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return KindInternal
	}
	if k, ok := kinds[appErr.Code]; ok {
		return k
	}
	return KindInternal
}

// As is errors.As specialised to *AppError.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}
