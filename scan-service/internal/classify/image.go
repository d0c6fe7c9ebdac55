package classify

import (
	"encoding/base64"
	"errors"
	"net/http"
	"regexp"
	"strings"
)

// ErrInvalidImage indicates an undecodable or non-image payload.
var ErrInvalidImage = errors.New("invalid image payload")

var dataURLPrefix = regexp.MustCompile(`^data:image/(png|jpg|jpeg|webp);base64,`)

// DecodeImage accepts raw base64 or a data URL and returns the image bytes.
func DecodeImage(encoded string) (Image, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return Image{}, ErrInvalidImage
	}

	cleaned := dataURLPrefix.ReplaceAllString(encoded, "")
	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(cleaned)
		if err != nil {
			return Image{}, ErrInvalidImage
		}
	}
	return NewImage(data)
}

// NewImage sniffs the content type of data and rejects anything that is not an image.
func NewImage(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, ErrInvalidImage
	}
	mimeType := DetectMIMEType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return Image{}, ErrInvalidImage
	}
	return Image{Data: data, MIMEType: mimeType}, nil
}

// DetectMIMEType sniffs the content type of data.
func DetectMIMEType(data []byte) string {
	mimeType := http.DetectContentType(data)
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return mimeType
}
