package chat

import "errors"

var (
	ErrInvalidName         = errors.New("presence name is empty")
	ErrEmptyMessage        = errors.New("message body is empty")
	ErrMessageTooLong      = errors.New("message body is too long")
	ErrNotJoined           = errors.New("connection has not joined")
	ErrAlreadyJoined       = errors.New("connection already joined under another name")
	ErrDuplicateConnection = errors.New("duplicate connection id")
	ErrUnknownConnection   = errors.New("unknown connection")
	ErrStoreUnavailable    = errors.New("message store unavailable")
	ErrQueueOverflow       = errors.New("outbound queue overflow")
	ErrRateLimited         = errors.New("too many messages")
	ErrMalformedFrame      = errors.New("malformed frame")
	ErrEngineStopped       = errors.New("engine stopped")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidName, "invalid_name"},
	{ErrEmptyMessage, "invalid_input"},
	{ErrMessageTooLong, "invalid_input"},
	{ErrMalformedFrame, "invalid_input"},
	{ErrNotJoined, "not_joined"},
	{ErrAlreadyJoined, "already_joined"},
	{ErrDuplicateConnection, "duplicate_connection"},
	{ErrUnknownConnection, "unknown_connection"},
	{ErrStoreUnavailable, "store_unavailable"},
	{ErrQueueOverflow, "queue_overflow"},
	{ErrRateLimited, "rate_limited"},
	{ErrEngineStopped, "unavailable"},
}

// Code maps an error to the code carried by error frames.
func Code(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// publicText is the text sent to clients: the matching sentinel's message,
// never the wrapped cause.
func publicText(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.err.Error()
		}
	}
	return "internal error"
}
