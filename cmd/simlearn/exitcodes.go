package main

// Exit codes shared by all commands.
const (
	ExitSuccess       = 0 // Success
	ExitError         = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError   = 2 // Configuration error (no workspace, invalid paths) / index not found
	ExitDataError     = 3 // Data error (empty or malformed dataset) / embedding service not available
	ExitNotIndexed    = 4 // Item exists but has no embedding
	ExitModelNotFound = 5 // Embedding model not found
	ExitIndexStale    = 6 // Embedding index is stale
)
