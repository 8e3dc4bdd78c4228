package wscodec

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"nhooyr.io/wscodec/internal/test/assert"
)

func TestClosePayload(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		ce      CloseError
		success bool
	}{
		{
			name: "normal",
			ce: CloseError{
				Code:   StatusNormalClosure,
				Reason: strings.Repeat("x", maxControlPayload-2),
			},
			success: true,
		},
		{
			name: "application",
			ce: CloseError{
				Code: 4000,
			},
			success: true,
		},
		{
			name: "bigReason",
			ce: CloseError{
				Code:   StatusNormalClosure,
				Reason: strings.Repeat("x", maxControlPayload-1),
			},
			success: false,
		},
		{
			name: "bigCode",
			ce: CloseError{
				Code:   math.MaxUint16,
				Reason: strings.Repeat("x", maxControlPayload-2),
			},
			success: false,
		},
		{
			name: "noStatusRcvd",
			ce: CloseError{
				Code: StatusNoStatusRcvd,
			},
			success: false,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p, err := ClosePayload(tc.ce.Code, tc.ce.Reason)
			if !tc.success {
				assert.ErrorIs(t, ErrInvalidClosePayload, err)
				return
			}
			assert.Success(t, err)

			ce, err := ParseClosePayload(p)
			assert.Success(t, err)
			assert.Equal(t, "close error", tc.ce, ce)
		})
	}
}

func TestParseClosePayload(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		p       []byte
		success bool
		ce      CloseError
	}{
		{
			name:    "normal",
			p:       append([]byte{0x3, 0xE8}, []byte("hello")...),
			success: true,
			ce: CloseError{
				Code:   StatusNormalClosure,
				Reason: "hello",
			},
		},
		{
			name:    "nothing",
			success: true,
			ce: CloseError{
				Code: StatusNoStatusRcvd,
			},
		},
		{
			name:    "oneByte",
			p:       []byte{0},
			success: false,
		},
		{
			name:    "badStatusCode",
			p:       []byte{0x17, 0x70},
			success: false,
		},
		{
			name:    "badReason",
			p:       []byte{0x3, 0xE8, 0xc0},
			success: false,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ce, err := ParseClosePayload(tc.p)
			if tc.success {
				assert.Success(t, err)
				assert.Equal(t, "close error", tc.ce, ce)
			} else {
				assert.ErrorIs(t, ErrInvalidClosePayload, err)
			}
		})
	}
}

func TestFrameCloseError(t *testing.T) {
	t.Parallel()

	p, err := ClosePayload(StatusGoingAway, "bye")
	assert.Success(t, err)
	b, err := Encode(OpClose, p, Client)
	assert.Success(t, err)

	f, _, err := Decode(b)
	assert.Success(t, err)

	ce, err := f.CloseError()
	assert.Success(t, err)
	assert.Equal(t, "close error", CloseError{Code: StatusGoingAway, Reason: "bye"}, ce)
	assert.Equal(t, "close status", StatusGoingAway, CloseStatus(fmt.Errorf("peer closed: %w", ce)))
	assert.Equal(t, "close status", StatusCode(-1), CloseStatus(errors.New("xd")))

	_, err = Frame{Opcode: OpPing}.CloseError()
	assert.ErrorIs(t, ErrInvalidClosePayload, err)
}

func TestStatusCodeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "name", "StatusPolicyViolation", StatusPolicyViolation.String())
	assert.Equal(t, "name", "StatusCode(4000)", StatusCode(4000).String())
	assert.Equal(t, "name", "PONG", OpPong.String())
	assert.Equal(t, "name", "Opcode(3)", Opcode(3).String())
}
