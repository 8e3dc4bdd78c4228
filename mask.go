package wscodec

import (
	"encoding/binary"
	"math/bits"
)

// mask applies the WebSocket masking algorithm to b
// with the given key.
// See https://tools.ietf.org/html/rfc6455#section-5.3
//
// The key is the little endian uint32 of the 4 wire bytes so that
// whole words of b can be xored at once.
//
// The returned value is the correctly rotated key to
// continue to mask/unmask the message.
func mask(key uint32, b []byte) uint32 {
	if len(b) >= 8 {
		key64 := uint64(key)<<32 | uint64(key)

		for len(b) >= 32 {
			v := binary.LittleEndian.Uint64(b)
			binary.LittleEndian.PutUint64(b, v^key64)
			v = binary.LittleEndian.Uint64(b[8:16])
			binary.LittleEndian.PutUint64(b[8:16], v^key64)
			v = binary.LittleEndian.Uint64(b[16:24])
			binary.LittleEndian.PutUint64(b[16:24], v^key64)
			v = binary.LittleEndian.Uint64(b[24:32])
			binary.LittleEndian.PutUint64(b[24:32], v^key64)
			b = b[32:]
		}

		for len(b) >= 8 {
			v := binary.LittleEndian.Uint64(b)
			binary.LittleEndian.PutUint64(b, v^key64)
			b = b[8:]
		}
	}

	for len(b) >= 4 {
		v := binary.LittleEndian.Uint32(b)
		binary.LittleEndian.PutUint32(b, v^key)
		b = b[4:]
	}

	for i := range b {
		b[i] ^= byte(key)
		key = bits.RotateLeft32(key, -8)
	}

	return key
}

// maskBytes masks b with the 4 byte key as it appears on the wire.
func maskBytes(key [4]byte, b []byte) {
	mask(binary.LittleEndian.Uint32(key[:]), b)
}
