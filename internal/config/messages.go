package config

// Messages surfaced to clients and operators
const (
	// MsgShuttingDown is returned while the server rejects new work
	MsgShuttingDown = "Server is shutting down. Please retry after the server restarts."
	// MsgUnauthorized is returned when the bearer token is missing or wrong
	MsgUnauthorized = "Unauthorized: missing or invalid bearer token"
	// MsgQueryTokenRejected is returned when a query token is used on a network bind
	MsgQueryTokenRejected = "Unauthorized: query-parameter tokens are not accepted on network binds"
	// MsgRateLimited is returned when a client exceeds its request budget
	MsgRateLimited = "rate limit exceeded"
	// MsgMethodRequired is returned for requests without a method
	MsgMethodRequired = "Invalid Request: method is required"
	// MsgMessagesDropped is the human readable part of the drop notice
	MsgMessagesDropped = "%d messages were dropped because the client fell behind"
	// ErrToolExecution is the format string for failed tool calls
	ErrToolExecution = "Tool execution failed: %s"
)
