package sefaz

import (
	"errors"
	"fmt"
)

// ErrorKind classifies protocol failures
type ErrorKind string

const (
	KindEndpoint    ErrorKind = "ENDPOINT"
	KindCertificate ErrorKind = "CERTIFICATE"
	KindTransport   ErrorKind = "TRANSPORT"
	KindParse       ErrorKind = "PARSE"
	KindRemote      ErrorKind = "REMOTE"
	KindHTTP        ErrorKind = "HTTP"
	KindTimeout     ErrorKind = "TIMEOUT"
	KindMaxAttempts ErrorKind = "MAX_ATTEMPTS"
)

// ProtocolError is a failure talking to a SEFAZ web service
type ProtocolError struct {
	Kind       ErrorKind
	Service    Service
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("sefaz %s error", e.Kind)
	if e.Service != "" {
		msg += " calling " + string(e.Service)
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// Is matches a ProtocolError of the same kind
func (e *ProtocolError) Is(target error) bool {
	var t *ProtocolError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// FaultError is a SOAP fault returned by the service
type FaultError struct {
	Service    Service
	Code       string
	Reason     string
	HTTPStatus int
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("sefaz fault calling %s: %s", e.Service, e.Reason)
}

// Is makes a FaultError match ErrRemote
func (e *FaultError) Is(target error) bool {
	var t *ProtocolError
	return errors.As(target, &t) && t.Kind == KindRemote
}

// Sentinels for errors.Is
var (
	ErrEndpoint    = &ProtocolError{Kind: KindEndpoint}
	ErrCertificate = &ProtocolError{Kind: KindCertificate}
	ErrTransport   = &ProtocolError{Kind: KindTransport}
	ErrParse       = &ProtocolError{Kind: KindParse}
	ErrRemote      = &ProtocolError{Kind: KindRemote}
	ErrHTTP        = &ProtocolError{Kind: KindHTTP}
	ErrTimeout     = &ProtocolError{Kind: KindTimeout}
	ErrMaxAttempts = &ProtocolError{Kind: KindMaxAttempts}
)

func protocolError(kind ErrorKind, service Service, cause error, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Kind: kind, Service: service, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the kind of a protocol or fault error, or "" for anything else
func KindOf(err error) ErrorKind {
	var fe *FaultError
	if errors.As(err, &fe) {
		return KindRemote
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
