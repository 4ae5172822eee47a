package cmd

// Exit codes.
const (
	exitSuccess = 0
	// exitTransport covers network failures, non-2xx responses and errors
	// reported inside a response payload.
	exitTransport = 1
	// exitUsage covers an empty query and bad flag values.
	exitUsage = 2
	// exitConfig covers unreadable config, unknown backends and storage
	// that cannot be opened.
	exitConfig = 3
)
