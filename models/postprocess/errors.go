package postprocess

import (
	"fmt"

	"github.com/pkg/errors"
)

// DecodeError reports a tensor set that does not match what the category expects.
//
// Decode never returns an empty result for malformed input: a missing or misshapen output
// usually means the wrong model was loaded, and an empty overlay would hide that.
type DecodeError struct {
	Category Category
	Reason   string
	Err      error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode %s: %s", e.Category, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is, or wraps, a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

func decodeErrorf(c Category, format string, args ...any) error {
	return &DecodeError{Category: c, Reason: fmt.Sprintf(format, args...)}
}
