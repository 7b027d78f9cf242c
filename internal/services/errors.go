// Package services defines the business logic for chat resolution, message
// delivery, and history reads. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

var (
	// ErrInvalidParticipants is returned when a participant set has fewer
	// than two entries, contains duplicates, or contains blank identifiers.
	ErrInvalidParticipants = errors.New("participants must be two or more distinct user ids")

	// ErrChatNotFound indicates that the requested chat does not exist.
	ErrChatNotFound = errors.New("chat not found")

	// ErrEmptyText is returned when a message is sent with an empty body.
	ErrEmptyText = errors.New("message text is empty")

	// ErrEmptySender is returned when a message is sent without a sender id.
	ErrEmptySender = errors.New("sender id is empty")

	// ErrSenderNotParticipant is returned when the sender is not a member of
	// the chat's participant set.
	ErrSenderNotParticipant = errors.New("sender is not a chat participant")

	// ErrTextTooLong is returned when a message body exceeds the configured
	// maximum length limit.
	ErrTextTooLong = errors.New("message text too long")

	// ErrEmptyQuery is returned when a message search is requested with a
	// blank query string.
	ErrEmptyQuery = errors.New("search query is empty")

	// ErrStoreUnavailable wraps storage I/O failures so callers can tell
	// them apart from validation and not-found outcomes. Use errors.Is to
	// detect it; the underlying DB error is retained in the message.
	ErrStoreUnavailable = errors.New("persistence store unavailable")
)
