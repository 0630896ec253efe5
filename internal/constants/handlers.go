package constants

import "time"

// File upload constants
const (
	// MaxUploadSize is the maximum recognize upload size in bytes (32MB)
	MaxUploadSize = 32 << 20
)

// Server timeouts
const (
	// RequestTimeout bounds a single API request, including remote inference calls
	RequestTimeout = 2 * time.Minute

	// ShutdownTimeout is the grace period for in-flight requests on shutdown
	ShutdownTimeout = 10 * time.Second
)
