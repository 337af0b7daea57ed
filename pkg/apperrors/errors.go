// Package apperrors holds the error taxonomy shared by the registries, the
// credit ledger and the settlement engine.
package apperrors

import (
	"errors"
	"net/http"
)

var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidState           = errors.New("invalid state")
	ErrAlreadySettled         = errors.New("already settled")
	ErrOverListed             = errors.New("over listed")
	ErrOverSold               = errors.New("over sold")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrIncorrectPayment       = errors.New("incorrect payment")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrNotFound               = errors.New("not found")
	ErrDuplicateCompany       = errors.New("duplicate company")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrInvalidArgument        = errors.New("invalid argument")
)

type entry struct {
	err    error
	code   string
	status int
}

var taxonomy = []entry{
	{ErrUnauthorized, "UNAUTHORIZED", http.StatusForbidden},
	{ErrInvalidState, "INVALID_STATE", http.StatusConflict},
	{ErrAlreadySettled, "ALREADY_SETTLED", http.StatusConflict},
	{ErrOverListed, "OVER_LISTED", http.StatusUnprocessableEntity},
	{ErrOverSold, "OVER_SOLD", http.StatusUnprocessableEntity},
	{ErrInsufficientCollateral, "INSUFFICIENT_COLLATERAL", http.StatusPaymentRequired},
	{ErrIncorrectPayment, "INCORRECT_PAYMENT", http.StatusPaymentRequired},
	{ErrInsufficientBalance, "INSUFFICIENT_BALANCE", http.StatusUnprocessableEntity},
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound},
	{ErrDuplicateCompany, "DUPLICATE_COMPANY", http.StatusConflict},
	{ErrInvalidAmount, "INVALID_AMOUNT", http.StatusBadRequest},
	{ErrInvalidTransition, "INVALID_TRANSITION", http.StatusConflict},
	{ErrInvalidArgument, "INVALID_ARGUMENT", http.StatusBadRequest},
}

// Code returns the stable taxonomy tag for err, or "INTERNAL" when err does
// not wrap any known sentinel.
func Code(err error) string {
	for _, e := range taxonomy {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "INTERNAL"
}

// HTTPStatus maps err onto the response status used by the API handlers.
func HTTPStatus(err error) int {
	for _, e := range taxonomy {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}
