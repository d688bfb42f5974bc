package danbooru

import (
	"errors"
	"fmt"
)

// ErrTransport is matched by every TransportError.
var ErrTransport = errors.New("danbooru transport error")

// TransportError reports a failed implication lookup: the request could not
// be sent, timed out, was answered with a non-2xx status (rate-limit
// rejections included), or returned a body that could not be decoded.
type TransportError struct {
	Tag        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("implication lookup for %q failed with status %d: %v", e.Tag, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("implication lookup for %q failed: %v", e.Tag, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransport) true for any TransportError.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// IsTransportError reports whether err is or wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRateLimited reports whether err is a TransportError caused by the
// authority rejecting the request for exceeding its rate limit.
func IsRateLimited(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	return te.StatusCode == 429 || te.StatusCode == 503
}
