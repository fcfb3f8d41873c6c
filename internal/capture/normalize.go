package capture

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"

	"github.com/adalign/backend/pkg/utils"
)

// MaxUploadPixels bounds the decoded size of an uploaded image.
const MaxUploadPixels = 40_000_000

// NormalizeUpload downscales a data-URL image so neither side exceeds
// maxDim, re-encoding it as JPEG. Images already within bounds are returned
// unchanged. The header is checked against MaxUploadPixels before any pixel
// data is decoded.
func NormalizeUpload(dataURL string, maxDim int) (string, error) {
	_, data, err := utils.ParseDataURL(dataURL)
	if err != nil {
		return "", err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to read upload header: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxUploadPixels {
		return "", fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	if maxDim <= 0 || (cfg.Width <= maxDim && cfg.Height <= maxDim) {
		return dataURL, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to decode upload: %w", err)
	}

	resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("failed to encode upload: %w", err)
	}
	return utils.EncodeDataURL("image/jpeg", buf.Bytes()), nil
}
