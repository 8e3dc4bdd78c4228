package wscodec

import (
	"crypto/rand"
	"fmt"
	"io"
)

// defaultRand is used when no random source is configured.
// crypto/rand.Reader is safe for concurrent use.
var defaultRand io.Reader = rand.Reader

// readRandom fills b from r. Any short read is reported as
// ErrRandomSourceExhausted.
func readRandom(r io.Reader, b []byte) error {
	_, err := io.ReadFull(r, b)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRandomSourceExhausted, err)
	}
	return nil
}
