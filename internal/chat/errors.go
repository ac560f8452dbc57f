package chat

import (
	"errors"
	"fmt"

	"github.com/inland-taipen/teamchat/internal/store"
)

// Failure kinds reported to senders. Callers classify with errors.Is.
var (
	ErrInvalidMessage  = errors.New("invalid message")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrStorage         = errors.New("storage error")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidMessage, "invalid_message"},
	{ErrPayloadTooLarge, "payload_too_large"},
	{ErrForbidden, "forbidden"},
	{ErrNotFound, "not_found"},
	{ErrStorage, "storage"},
}

// Kind returns a stable snake_case label for err, "internal" when it is
// outside the taxonomy.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// Describe splits err into the short message and the optional details sent
// in an "error" event. Storage failures never expose their cause.
func Describe(err error) (message, details string) {
	for _, k := range kinds {
		if !errors.Is(err, k.err) {
			continue
		}
		if k.err == ErrStorage {
			return k.err.Error(), ""
		}
		if err.Error() != k.err.Error() {
			details = err.Error()
		}
		return k.err.Error(), details
	}
	return "internal error", ""
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessage, fmt.Sprintf(format, args...))
}

// fromStore maps a store failure into the taxonomy.
func fromStore(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, op)
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
