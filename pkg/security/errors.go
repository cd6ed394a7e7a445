package security

import (
	"errors"
	"fmt"
)

// ErrorKind is the signing error family
type ErrorKind string

const (
	KindCertificate ErrorKind = "CERTIFICATE"
	KindXML         ErrorKind = "XML"
	KindData        ErrorKind = "DATA"
)

// Reason narrows a certificate or XML failure
type Reason string

const (
	ReasonWrongPassword       Reason = "wrong-password"
	ReasonCorrupt             Reason = "corrupt"
	ReasonUnsupportedEncoding Reason = "unsupported-encoding"
	ReasonExpired             Reason = "expired"
	ReasonNotYetValid         Reason = "not-yet-valid"
	ReasonNoPrivateKey        Reason = "no-private-key"
	ReasonUnsupportedKey      Reason = "unsupported-key"
	ReasonMalformed           Reason = "malformed"
	ReasonTargetMissing       Reason = "target-missing"
	ReasonTargetAmbiguous     Reason = "target-ambiguous"
	ReasonMissingID           Reason = "missing-id"
	ReasonAlreadySigned       Reason = "already-signed"
	ReasonPlaceholderID       Reason = "placeholder-id"
	ReasonSignatureMissing    Reason = "signature-missing"
	ReasonInvalidSignature    Reason = "invalid-signature"
	ReasonUntrusted           Reason = "untrusted"
)

// SigningError is returned by certificate parsing, signing and verification
type SigningError struct {
	Kind    ErrorKind
	Reason  Reason
	Message string
	Cause   error
}

func (e *SigningError) Error() string {
	msg := fmt.Sprintf("signing %s error (%s): %s", e.Kind, e.Reason, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SigningError) Unwrap() error {
	return e.Cause
}

// Is matches another SigningError by kind, and by reason when the target sets one
func (e *SigningError) Is(target error) bool {
	var t *SigningError
	if !errors.As(target, &t) {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

func newError(kind ErrorKind, reason Reason, cause error, format string, args ...interface{}) *SigningError {
	return &SigningError{Kind: kind, Reason: reason, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Sentinels for errors.Is
var (
	ErrCertificate         = &SigningError{Kind: KindCertificate}
	ErrXML                 = &SigningError{Kind: KindXML}
	ErrData                = &SigningError{Kind: KindData}
	ErrWrongPassword       = &SigningError{Kind: KindCertificate, Reason: ReasonWrongPassword}
	ErrCorruptBundle       = &SigningError{Kind: KindCertificate, Reason: ReasonCorrupt}
	ErrUnsupportedEncoding = &SigningError{Kind: KindCertificate, Reason: ReasonUnsupportedEncoding}
	ErrCertificateExpired  = &SigningError{Kind: KindCertificate, Reason: ReasonExpired}
	ErrAlreadySigned       = &SigningError{Kind: KindXML, Reason: ReasonAlreadySigned}
	ErrPlaceholderID       = &SigningError{Kind: KindData, Reason: ReasonPlaceholderID}
)
