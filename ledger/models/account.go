package models

import "errors"

var (
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrMalformedRecipient = errors.New("recipient card number is malformed")
	ErrUnknownRecipient   = errors.New("recipient card does not exist")
	ErrSelfTransfer       = errors.New("cannot transfer to the same account")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrBalanceOverflow    = errors.New("balance would exceed the maximum")
	// ErrAuthFailure does not say which of number or PIN was wrong.
	ErrAuthFailure     = errors.New("wrong card number or PIN")
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrAlreadyLoggedIn = errors.New("already logged in")
)

// Card identifies an account. Number is unique in the store.
type Card struct {
	Number string
	PIN    string
}

// Account is a card with its balance in the smallest currency unit.
type Account struct {
	Card    Card
	Balance int64
}
