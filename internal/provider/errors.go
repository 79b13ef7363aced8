package provider

import "errors"

var (
	ErrUnknownVariant  = errors.New("unknown provider variant")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrNotEnricher     = errors.New("provider cannot resolve contact fields")
	ErrNotSender       = errors.New("provider cannot send messages")
	ErrMissingConfig   = errors.New("provider configuration incomplete")
)
