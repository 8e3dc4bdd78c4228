package wspb_test

import (
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/protobuf/ptypes"
	"github.com/golang/protobuf/ptypes/duration"

	"nhooyr.io/wscodec"
	"nhooyr.io/wscodec/internal/test/assert"
	"nhooyr.io/wscodec/wspb"
)

func TestProtobuf(t *testing.T) {
	t.Parallel()

	exp := ptypes.DurationProto(100 * time.Millisecond)

	b, err := wspb.Encode(wscodec.NewCodec(nil), wscodec.Client, exp)
	assert.Success(t, err)

	f, _, err := wscodec.Decode(b)
	assert.Success(t, err)
	assert.Equal(t, "opcode", wscodec.OpBinary, f.Opcode)

	got := &duration.Duration{}
	err = wspb.Decode(f, got)
	assert.Success(t, err)
	if !proto.Equal(exp, got) {
		t.Fatalf("unexpected message: expected %v but got %v", exp, got)
	}

	err = wspb.Decode(wscodec.Frame{Opcode: wscodec.OpText}, got)
	assert.Contains(t, err, "unexpected frame type")

	err = wspb.Decode(wscodec.Frame{Opcode: wscodec.OpBinary, Payload: []byte{0xff}}, got)
	assert.Contains(t, err, "failed to unmarshal protobuf")
}
