package chat

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-chat/core"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("room not found")
	ErrRoomInactive      = errors.New("room is not active")
	ErrRoomFull          = errors.New("room is full")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// Error kinds reported back to the calling connection.
const (
	KindUnauthorized      = "Unauthorized"
	KindNotFound          = "NotFound"
	KindRoomInactive      = "RoomInactive"
	KindRoomFull          = "RoomFull"
	KindValidation        = "ValidationError"
	KindRateLimitExceeded = "RateLimitExceeded"
	KindEncryption        = "EncryptionError"
	KindDecryption        = "DecryptionError"
	KindPersistence       = "PersistenceError"
	KindInternal          = "InternalError"
)

type EncryptionError struct {
	RoomID string
	Err    error
}

func (e *EncryptionError) Error() string { return "encrypting message for room " + e.RoomID + ": " + e.Err.Error() }
func (e *EncryptionError) Unwrap() error { return e.Err }

type DecryptionError struct {
	RoomID string
	Err    error
}

func (e *DecryptionError) Error() string { return "decrypting message for room " + e.RoomID + ": " + e.Err.Error() }
func (e *DecryptionError) Unwrap() error { return e.Err }

// PersistenceError wraps store failures. It deliberately has no Cause method so that
// errors.Cause stops here and the kind survives.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// storeErr passes engine sentinels through and marks anything else as a PersistenceError.
func storeErr(err error, op string) error {
	switch errors.Cause(err) {
	case ErrNotFound, ErrUnauthorized:
		return errors.Wrap(err, op)
	}
	return &PersistenceError{Op: op, Err: err}
}

// ErrorKind maps an operation failure to its taxonomy name.
func ErrorKind(err error) string {
	switch cause := errors.Cause(err).(type) {
	case nil:
		return ""
	case *EncryptionError:
		return KindEncryption
	case *DecryptionError:
		return KindDecryption
	case *PersistenceError:
		return KindPersistence
	case *core.ValidationError, validator.ValidationErrors:
		return KindValidation
	default:
		switch cause {
		case ErrUnauthorized:
			return KindUnauthorized
		case ErrNotFound:
			return KindNotFound
		case ErrRoomInactive:
			return KindRoomInactive
		case ErrRoomFull:
			return KindRoomFull
		case ErrRateLimitExceeded:
			return KindRateLimitExceeded
		}
	}
	return KindInternal
}
