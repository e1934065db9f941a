// Package apperr defines the error taxonomy shared by the chat core.
// Components wrap these sentinels with fmt.Errorf("...: %w", ...) so
// callers can classify failures with errors.Is.
package apperr

import "errors"

var (
	// ErrInvalidContent rejects empty or over-length message content.
	// The send has no side effects when this is returned.
	ErrInvalidContent = errors.New("invalid message content")

	// ErrChatNotFound means no chat exists for the given display number.
	ErrChatNotFound = errors.New("chat not found")

	// ErrCapacityExceeded rejects joins/sends that would push a group
	// chat past its participant limit.
	ErrCapacityExceeded = errors.New("group chat capacity exceeded")

	// ErrStoreUnavailable wraps document-store failures. The operation
	// that hit it is aborted, nothing is broadcast.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrBusUnavailable wraps bus publish failures. Best-effort: logged,
	// never surfaced to the sending client.
	ErrBusUnavailable = errors.New("bus unavailable")

	// ErrUserNotFound means the referenced username has never logged in.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicate surfaces store uniqueness violations so callers can
	// re-fetch and reuse the conflicting record.
	ErrDuplicate = errors.New("duplicate key")
)
