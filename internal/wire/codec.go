package wire

import (
	"bytes"
	"compress/gzip"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

// Method selects how a value is encoded for transmission.
type Method byte

const (
	// MethodPlain passes the value through unchanged.
	MethodPlain Method = 'p'
	// MethodBase64 encodes the value with the URL-safe base64 alphabet.
	MethodBase64 Method = 'b'
	// MethodGzip compresses the value before base64 encoding.
	// Used for large payloads such as descriptor lists.
	MethodGzip Method = 'z'
	// MethodCipher seals the value with the transmission key.
	MethodCipher Method = 'c'
)

// maxDecodedSize bounds the output of gzip decoding.
const maxDecodedSize = 16 << 20

var b64 = base64.RawURLEncoding

// Encode encodes data with the given method. The key is only used by
// MethodCipher.
func Encode(method Method, data []byte, key string) (string, error) {
	switch method {
	case MethodPlain:
		return "p|" + string(data), nil
	case MethodBase64:
		return "b|" + b64.EncodeToString(data), nil
	case MethodGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return "", fmt.Errorf("failed to compress value: %w", err)
		}
		if err := zw.Close(); err != nil {
			return "", fmt.Errorf("failed to compress value: %w", err)
		}
		return "z|" + b64.EncodeToString(buf.Bytes()), nil
	case MethodCipher:
		return seal(data, key)
	default:
		return "", fmt.Errorf("unknown encoding method %q", byte(method))
	}
}

// EncodeString is Encode for string values.
func EncodeString(method Method, s, key string) (string, error) {
	return Encode(method, []byte(s), key)
}

// MustEncodeString encodes s with a method that cannot fail for valid input.
// It panics for MethodCipher, which needs a usable key.
func MustEncodeString(method Method, s string) string {
	if method == MethodCipher {
		panic("wire: MustEncodeString cannot use the keyed cipher")
	}
	out, err := EncodeString(method, s, "")
	if err != nil {
		panic(err)
	}
	return out
}

// Decode reverses Encode. Text without a known method prefix is returned
// unchanged.
func Decode(s, key string) ([]byte, error) {
	if len(s) < 2 || s[1] != '|' {
		return []byte(s), nil
	}
	body := s[2:]
	switch Method(s[0]) {
	case MethodPlain:
		return []byte(body), nil
	case MethodBase64:
		out, err := b64.DecodeString(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return out, nil
	case MethodGzip:
		raw, err := b64.DecodeString(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		defer zr.Close()
		out, err := io.ReadAll(io.LimitReader(zr, maxDecodedSize))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return out, nil
	case MethodCipher:
		return open(body, key)
	default:
		return []byte(s), nil
	}
}

// DecodeString is Decode for string values.
func DecodeString(s, key string) (string, error) {
	out, err := Decode(s, key)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// NewKey returns a random transmission key for one exchange.
func NewKey() string {
	var buf [12]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("wire: cannot read random bytes: %v", err))
	}
	return b64.EncodeToString(buf[:])
}

func seal(data []byte, key string) (string, error) {
	aead, err := cipherFor(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(data)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to create nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, data, nil)
	return "c|" + b64.EncodeToString(sealed), nil
}

func open(body, key string) ([]byte, error) {
	aead, err := cipherFor(key)
	if err != nil {
		return nil, err
	}
	raw, err := b64.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(raw) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: sealed value too short", ErrDecode)
	}
	out, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return out, nil
}

// cipherFor derives the AEAD from the transmission key.
func cipherFor(key string) (cipher.AEAD, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	k := blake2b.Sum256([]byte(key))
	aead, err := chacha20poly1305.NewX(k[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return aead, nil
}
