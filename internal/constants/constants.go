// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Image processing constants
const (
	// JPEGQuality is the quality used when writing annotated images
	JPEGQuality = 85
)

// Recognition constants
const (
	// DefaultThreshold is the maximum Euclidean distance for a reference to count as a hit.
	// Lower values = stricter matching
	DefaultThreshold = 0.6

	// DefaultEmbeddingsDir is the embeddings root used when none is configured
	DefaultEmbeddingsDir = "embeddings"
)
