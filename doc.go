// Package wscodec implements the WebSocket protocol codec: the client opening
// handshake and single frame encoding and decoding.
//
// See https://tools.ietf.org/html/rfc6455
//
// The package performs no I/O. Requests and frames are returned as byte slices
// for the caller to send, and received bytes are handed to Decode or a Stream.
// Random bytes for nonces and client mask keys come from an io.Reader,
// crypto/rand.Reader unless configured otherwise.
//
// A typical client:
//
//	hs, err := wscodec.NewHandshake(nil, "/chat", "example.com")
//	// write hs.Request() to the connection
//	resp, err := hs.ReadResponse(br)
//	b, err := wscodec.Encode(wscodec.OpText, []byte("hi"), wscodec.Client)
//	// write b, then feed reads into a wscodec.Stream
//
// Fragmented messages are returned frame by frame; reassembling
// continuation frames is left to the caller.
package wscodec
