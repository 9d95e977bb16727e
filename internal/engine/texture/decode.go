package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/h2non/filetype"
	"golang.org/x/image/webp"
)

// ErrUnknownImageFormat is returned for data no decoder recognizes.
var ErrUnknownImageFormat = errors.New("unknown image format")

// DecodeImage decodes png, jpeg, webp or tga data. The container is sniffed
// from the bytes; declared is only used for formats without a signature.
// It returns the detected format name.
func DecodeImage(data []byte, declared string) (image.Image, string, error) {
	kind, _ := filetype.Match(data)

	var (
		img    image.Image
		err    error
		format = kind.Extension
	)
	switch kind.Extension {
	case "png":
		img, err = png.Decode(bytes.NewReader(data))
	case "jpg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	case "webp":
		img, err = webp.Decode(bytes.NewReader(data))
	default:
		if !strings.EqualFold(declared, "tga") {
			return nil, "", fmt.Errorf("%w: declared %q, detected %q", ErrUnknownImageFormat, declared, kind.MIME.Value)
		}
		format = "tga"
		img, err = DecodeTGA(data)
	}
	if err != nil {
		return nil, "", fmt.Errorf("decoding %s: %w", format, err)
	}
	return img, format, nil
}
