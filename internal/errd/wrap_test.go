package errd_test

import (
	"errors"
	"fmt"
	"testing"

	"nhooyr.io/wscodec/internal/errd"
	"nhooyr.io/wscodec/internal/test/assert"
)

var errBase = errors.New("base")

func wrapped(fail bool) (err error) {
	defer errd.Wrap(&err, "failed to do %v", "thing")
	if fail {
		return errBase
	}
	return nil
}

func TestWrap(t *testing.T) {
	t.Parallel()

	t.Run("nil", func(t *testing.T) {
		t.Parallel()

		assert.Success(t, wrapped(false))
	})

	t.Run("wrapped", func(t *testing.T) {
		t.Parallel()

		err := wrapped(true)
		assert.ErrorIs(t, errBase, err)
		assert.Equal(t, "message", "failed to do thing: base", err.Error())
		assert.Contains(t, fmt.Sprintf("%+v", err), "wrap_test.go")
	})
}
