package container

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
)

// Encoding is how the compressed payload itself is represented.
type Encoding string

const (
	EncodingRaw    Encoding = "raw"
	EncodingBase64 Encoding = "base64"
)

func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case "", EncodingRaw:
		return EncodingRaw, nil
	case EncodingBase64:
		return EncodingBase64, nil
	default:
		return "", errors.Errorf("unknown encoding '%s'", s)
	}
}

// DecodeInput turns an encoded payload into the compressed bytes. Base64
// payloads may be wrapped across lines and may omit padding.
func DecodeInput(data []byte, enc Encoding) ([]byte, error) {
	switch enc {
	case "", EncodingRaw:
		return data, nil
	case EncodingBase64:
		clean := bytes.Map(func(r rune) rune {
			switch r {
			case ' ', '\t', '\r', '\n':
				return -1
			}
			return r
		}, data)

		clean = bytes.TrimRight(clean, "=")

		out := make([]byte, base64.RawStdEncoding.DecodedLen(len(clean)))

		n, err := base64.RawStdEncoding.Decode(out, clean)
		if err != nil {
			return nil, errors.Wrap(err, "unable to decode base64 payload")
		}

		return out[:n], nil
	default:
		return nil, errors.Errorf("unknown encoding '%s'", enc)
	}
}
