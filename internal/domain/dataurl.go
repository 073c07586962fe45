package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// ImagePayload is the decoded transport form of an inline image.
type ImagePayload struct {
	MIMEType string
	Data     []byte
}

// EncodeDataURL renders an image payload in the data-URL form used for
// display and storage. Encoding then decoding yields byte-identical data.
func EncodeDataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// DecodeDataURL parses a base64 data URL back into its payload. The decode
// is deterministic: the same input always yields the same bytes and MIME type.
func DecodeDataURL(dataURL string) (ImagePayload, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return ImagePayload{}, fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return ImagePayload{}, fmt.Errorf("malformed data URL: no payload separator")
	}
	mimeType, encoded := meta, false
	if m, found := strings.CutSuffix(meta, ";base64"); found {
		mimeType, encoded = m, true
	}
	if !encoded {
		return ImagePayload{}, fmt.Errorf("unsupported data URL encoding: %q", meta)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return ImagePayload{}, fmt.Errorf("failed to decode data URL payload: %w", err)
	}
	return ImagePayload{MIMEType: mimeType, Data: data}, nil
}

// IsImageMIME reports whether a MIME type denotes an image.
func IsImageMIME(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}
