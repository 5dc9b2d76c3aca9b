package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOrderNotFound means no ledger entry exists for the given order id.
	ErrOrderNotFound = errors.New("order not found")

	// ErrAttendeeNotFound means no attendee record matched the lookup key.
	ErrAttendeeNotFound = errors.New("attendee not found")

	// ErrEncodingFailed means the credential payload could not be encoded.
	ErrEncodingFailed = errors.New("credential encoding failed")

	// ErrGatewayTimeout means the payment gateway did not answer within the
	// configured bound.
	ErrGatewayTimeout = errors.New("payment gateway timeout")

	// ErrEmptyCart means every submitted line resolved to nothing, so there
	// is no order to create.
	ErrEmptyCart = errors.New("no valid items found to process")
)

// ItemNotFoundError rejects a whole cart: it carries every line-item name
// that failed catalog resolution.
type ItemNotFoundError struct {
	Names []string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("items not found in catalog: %s", strings.Join(e.Names, ", "))
}

// UpstreamError marks a payment-gateway failure so the HTTP edge can answer
// 502 instead of 500.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("payment gateway error: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
