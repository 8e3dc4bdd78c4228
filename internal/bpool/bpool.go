// Package bpool pools the scratch buffers used to marshal frame payloads.
package bpool

import (
	"bytes"
	"sync"
)

var bpool = sync.Pool{
	New: func() interface{} {
		return &bytes.Buffer{}
	},
}

// Get returns an empty buffer from the pool.
func Get() *bytes.Buffer {
	return bpool.Get().(*bytes.Buffer)
}

// Put resets b and returns it to the pool.
// b must not be used afterwards.
func Put(b *bytes.Buffer) {
	b.Reset()
	bpool.Put(b)
}
