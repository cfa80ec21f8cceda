package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// ServiceError is a service-side rejection (4xx). Correcting the input
// and retrying is up to the caller, never to the client.
type ServiceError struct {
	Op         string // Operation that failed (e.g. "create order")
	StatusCode int
	Code       string // Service error code, e.g. "XMRTO-ERROR-6"
	Message    string
	Err        error // Optional sentinel, e.g. ErrOrderNotFound
}

func (e *ServiceError) Error() string {
	msg := e.Op + ": service rejected request"
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *ServiceError) IsRetriable() bool {
	return false
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// TransientError covers timeouts, connection failures and 5xx responses.
// The tracking loop retries these with bounded backoff.
type TransientError struct {
	Op         string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + ": service unavailable"
}

func (e *TransientError) IsRetriable() bool {
	return true
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// ProtocolError means the response could not be decoded as expected.
// Never retried, this points at an API version mismatch.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return e.Op + ": malformed response: " + e.Err.Error()
}

func (e *ProtocolError) IsRetriable() bool {
	return false
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

var (
	// ErrAmbiguousAmount is returned when both a BTC and an XMR amount are given.
	ErrAmbiguousAmount = errors.New("ambiguous amount")

	// ErrMissingAmount is returned when no amount is given at all.
	ErrMissingAmount = errors.New("missing amount")

	// ErrInvalidAmount is returned for non-positive or unparseable amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrOrderNotFound is returned when the service does not know the secret key.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidStateForConfirm is returned when confirming a partial
	// payment while the order is not UNDERPAID. Raised client-side,
	// before any request is sent.
	ErrInvalidStateForConfirm = errors.New("order not ready for partial payment confirmation")

	// ErrUnsupportedAPIVersion is returned for operations the selected
	// API version does not offer (lightning needs v3).
	ErrUnsupportedAPIVersion = errors.New("unsupported API version")
)
