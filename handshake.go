package wscodec

import (
	"bufio"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/textproto"

	"golang.org/x/net/http/httpguts"

	"nhooyr.io/wscodec/internal/errd"
)

// KeyGUID is appended to the Sec-WebSocket-Key before hashing
// to compute the Sec-WebSocket-Accept value.
// See https://tools.ietf.org/html/rfc6455#section-1.3
const KeyGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Nonce is the random value of a single handshake attempt.
// A new one must be generated for every attempt.
type Nonce [16]byte

// GenerateNonce reads a fresh nonce from r.
// If r is nil, crypto/rand.Reader is used.
func GenerateNonce(r io.Reader) (Nonce, error) {
	if r == nil {
		r = defaultRand
	}
	var n Nonce
	err := readRandom(r, n[:])
	if err != nil {
		return Nonce{}, fmt.Errorf("failed to generate handshake nonce: %w", err)
	}
	return n, nil
}

// Key returns the base64 encoded nonce as sent in Sec-WebSocket-Key.
func (n Nonce) Key() string {
	return base64.StdEncoding.EncodeToString(n[:])
}

// AcceptValue returns the Sec-WebSocket-Accept value a server
// must answer key with.
func AcceptValue(key string) string {
	h := sha1.New()
	io.WriteString(h, key)
	io.WriteString(h, KeyGUID)

	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

const (
	reqMethod     = "GET "
	reqProto      = " HTTP/1.1\r\n"
	reqHost       = "Host: "
	reqUpgrade    = "Upgrade: websocket\r\n"
	reqConnection = "Connection: Upgrade\r\n"
	reqKey        = "Sec-WebSocket-Key: "
	reqVersion    = "Sec-WebSocket-Version: 13\r\n"
	crlf          = "\r\n"
)

// BuildRequest renders the HTTP/1.1 upgrade request for target on host.
// target and host are written verbatim; validating them is up to the caller.
func BuildRequest(target, host string, n Nonce) []byte {
	keyLen := base64.StdEncoding.EncodedLen(len(n))

	size := len(reqMethod) + len(target) + len(reqProto) +
		len(reqHost) + len(host) + len(crlf) +
		len(reqUpgrade) +
		len(reqConnection) +
		len(reqKey) + keyLen + len(crlf) +
		len(reqVersion) +
		len(crlf)

	b := make([]byte, 0, size)
	b = append(b, reqMethod...)
	b = append(b, target...)
	b = append(b, reqProto...)
	b = append(b, reqHost...)
	b = append(b, host...)
	b = append(b, crlf...)
	b = append(b, reqUpgrade...)
	b = append(b, reqConnection...)
	b = append(b, reqKey...)
	b = b[:len(b)+keyLen]
	base64.StdEncoding.Encode(b[len(b)-keyLen:], n[:])
	b = append(b, crlf...)
	b = append(b, reqVersion...)
	b = append(b, crlf...)
	return b
}

// ValidateAccept checks the peer's Sec-WebSocket-Accept value against
// the one computed from n. The handshake must not proceed unless it
// returns nil.
func ValidateAccept(n Nonce, peerAccept string) error {
	_, err := base64.StdEncoding.DecodeString(peerAccept)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrMalformedAccept, peerAccept, err)
	}

	exp := AcceptValue(n.Key())
	if subtle.ConstantTimeCompare([]byte(exp), []byte(peerAccept)) != 1 {
		return fmt.Errorf("%w: got %q for key %q", ErrAcceptMismatch, peerAccept, n.Key())
	}
	return nil
}

// Handshake is a single client handshake attempt.
// It owns the attempt's nonce; use a new Handshake for every attempt.
type Handshake struct {
	nonce  Nonce
	target string
	host   string
}

// NewHandshake generates a nonce from r for a handshake against target on host.
// If r is nil, crypto/rand.Reader is used.
func NewHandshake(r io.Reader, target, host string) (*Handshake, error) {
	n, err := GenerateNonce(r)
	if err != nil {
		return nil, err
	}
	return &Handshake{
		nonce:  n,
		target: target,
		host:   host,
	}, nil
}

// Nonce returns the nonce of the attempt.
func (h *Handshake) Nonce() Nonce {
	return h.nonce
}

// Request returns the upgrade request to send to the server.
func (h *Handshake) Request() []byte {
	return BuildRequest(h.target, h.host, h.nonce)
}

// ReadResponse reads the server's handshake response from br and verifies it.
// The response is returned even when verification fails.
func (h *Handshake) ReadResponse(br *bufio.Reader) (*http.Response, error) {
	resp, err := http.ReadResponse(br, &http.Request{Method: http.MethodGet})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrHandshake, err)
	}
	return resp, h.VerifyResponse(resp)
}

// VerifyResponse verifies the status, upgrade headers and
// Sec-WebSocket-Accept of a server's handshake response.
func (h *Handshake) VerifyResponse(resp *http.Response) (err error) {
	defer errd.Wrap(&err, "failed to verify handshake response")

	if resp.StatusCode != http.StatusSwitchingProtocols {
		return fmt.Errorf("%w: expected status code %v but got %v", ErrHandshake, http.StatusSwitchingProtocols, resp.StatusCode)
	}

	if !headerContainsToken(resp.Header, "Connection", "Upgrade") {
		return fmt.Errorf("%w: Connection header %q does not contain Upgrade", ErrHandshake, resp.Header.Get("Connection"))
	}

	if !headerContainsToken(resp.Header, "Upgrade", "websocket") {
		return fmt.Errorf("%w: Upgrade header %q does not contain websocket", ErrHandshake, resp.Header.Get("Upgrade"))
	}

	accept := resp.Header.Get("Sec-WebSocket-Accept")
	if accept == "" {
		return fmt.Errorf("%w: missing Sec-WebSocket-Accept", ErrHandshake)
	}

	return ValidateAccept(h.nonce, accept)
}

// VerifyRequest verifies a client's upgrade request and returns
// its Sec-WebSocket-Key.
func VerifyRequest(r *http.Request) (key string, err error) {
	defer errd.Wrap(&err, "failed to verify handshake request")

	if !r.ProtoAtLeast(1, 1) {
		return "", fmt.Errorf("%w: handshake request must be at least HTTP/1.1: %q", ErrHandshake, r.Proto)
	}

	if r.Method != http.MethodGet {
		return "", fmt.Errorf("%w: handshake request method %q is not GET", ErrHandshake, r.Method)
	}

	if !headerContainsToken(r.Header, "Connection", "Upgrade") {
		return "", fmt.Errorf("%w: Connection header %q does not contain Upgrade", ErrHandshake, r.Header.Get("Connection"))
	}

	if !headerContainsToken(r.Header, "Upgrade", "websocket") {
		return "", fmt.Errorf("%w: Upgrade header %q does not contain websocket", ErrHandshake, r.Header.Get("Upgrade"))
	}

	if r.Header.Get("Sec-WebSocket-Version") != "13" {
		return "", fmt.Errorf("%w: unsupported protocol version %q", ErrHandshake, r.Header.Get("Sec-WebSocket-Version"))
	}

	key = r.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return "", fmt.Errorf("%w: missing Sec-WebSocket-Key", ErrHandshake)
	}
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(raw) != len(Nonce{}) {
		return "", fmt.Errorf("%w: Sec-WebSocket-Key %q is not a base64 encoded 16 byte nonce", ErrHandshake, key)
	}

	return key, nil
}

// BuildResponse renders the 101 Switching Protocols response for a
// request carrying key.
func BuildResponse(key string) []byte {
	return []byte("HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + AcceptValue(key) + "\r\n" +
		"\r\n")
}

func headerContainsToken(h http.Header, key, token string) bool {
	key = textproto.CanonicalMIMEHeaderKey(key)
	return httpguts.HeaderValuesContainsToken(h[key], token)
}
