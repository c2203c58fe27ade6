package storage

import "errors"

// Business errors surfaced by Storage implementations. Services and the
// bot layer match these with errors.Is; anything else is treated as an
// infrastructure failure.
var (
	ErrBookNotFound         = errors.New("book not found")
	ErrBookNotAvailable     = errors.New("book not available")
	ErrBorrowRecordNotFound = errors.New("borrow record not found")
	ErrContactNotFound      = errors.New("contact not found")
	ErrProcessNotFound      = errors.New("process not found")
	ErrOfferNotFound        = errors.New("offered book not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrDuplicateUsername    = errors.New("username already taken")
	ErrDuplicateTelegramID  = errors.New("telegram id already in use")
)
