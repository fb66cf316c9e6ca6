package embedder

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned when no embedding backend is configured or the
// configured backend is missing required credentials. Retrieval cannot run
// without an embedder, so callers should refuse to start rather than degrade.
var ErrUnavailable = errors.New("embedder: no embedding backend available")

// ErrProvider is returned when the configured backend's API call fails or
// returns a malformed payload. Transient by nature; the retrieval round that
// hit it fails, the service does not.
var ErrProvider = errors.New("embedder: provider call failed")

// DimensionError reports an embedding whose vector length does not match the
// similarity store's dimension contract. Mixing vector spaces silently
// produces garbage similarity scores, so this is always a hard error.
type DimensionError struct {
	// Got is the dimension the embedder produced.
	Got int
	// Want is the dimension the similarity store was provisioned for.
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedder: embedding dimension %d does not match store dimension %d", e.Got, e.Want)
}
