package engine

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies engine failures so callers can map them to transport
// status codes without parsing messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindContractCreation
	KindValidation
	KindTransfer
	KindStorage
	KindSignature
	KindConfiguration
	KindEsplora
)

func (k Kind) String() string {
	switch k {
	case KindContractCreation:
		return "contract creation"
	case KindValidation:
		return "validation"
	case KindTransfer:
		return "transfer"
	case KindStorage:
		return "storage"
	case KindSignature:
		return "signature"
	case KindConfiguration:
		return "configuration"
	case KindEsplora:
		return "esplora"
	default:
		return "unknown"
	}
}

// HTTPStatus is the status a REST layer should answer with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindContractCreation, KindValidation:
		return http.StatusBadRequest
	case KindTransfer:
		return http.StatusConflict
	case KindStorage:
		return http.StatusNotFound
	case KindEsplora:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is the single error type returned by the engine.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the Err* values below work as
// sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrContractCreation = &Error{Kind: KindContractCreation}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrTransfer         = &Error{Kind: KindTransfer}
	ErrStorage          = &Error{Kind: KindStorage}
	ErrSignature        = &Error{Kind: KindSignature}
	ErrConfiguration    = &Error{Kind: KindConfiguration}
	ErrEsplora          = &Error{Kind: KindEsplora}
)

func newErr(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
