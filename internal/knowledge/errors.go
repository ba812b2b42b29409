package knowledge

import "fmt"

// Sentinel errors for the Knowledge Vault taxonomy (spec.md §7).
var (
	ErrBackendUnavailable = fmt.Errorf("knowledge: backend unavailable")
	ErrEmbedderFailed     = fmt.Errorf("knowledge: embedder failed")
	ErrDimensionMismatch  = fmt.Errorf("knowledge: embedding dimension mismatch")
	ErrDocumentNotFound   = fmt.Errorf("knowledge: document not found")
	ErrInvalidPath        = fmt.Errorf("knowledge: invalid path")
)
