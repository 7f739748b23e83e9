// Package errors provides the sentinel errors of the inventory domain.
package errors

import "errors"

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInsufficientStock = errors.New("insufficient stock")
)
