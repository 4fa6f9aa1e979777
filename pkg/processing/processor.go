package processing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/isitai/pkg/types"
)

var (
	// ErrNotImage is returned for payloads that are not a decodable image
	ErrNotImage = errors.New("not an image")
	// ErrTooLarge is returned for payloads above MaxUploadBytes
	ErrTooLarge = errors.New("image too large")
	// ErrMalformedDataURI is returned by ParseDataURI
	ErrMalformedDataURI = errors.New("malformed data URI")
)

// Config controls how images are prepared for classification
type Config struct {
	// MaxDimension downsizes images whose long side exceeds it, 0 keeps the original bytes
	MaxDimension int
	// JPEGQuality is used when a downsized non-PNG image is re-encoded
	JPEGQuality int
	// MinImageSize is the minimum width and height in pixels
	MinImageSize int
	// MaxUploadBytes caps the raw payload size, 0 disables the check
	MaxUploadBytes int
}

// DefaultConfig returns the configuration used when none is supplied
func DefaultConfig() Config {
	return Config{
		MaxDimension:   0,
		JPEGQuality:    90,
		MinImageSize:   1,
		MaxUploadBytes: 20 << 20,
	}
}

// Processor turns raw image bytes into CapturedImage values
type Processor struct {
	config Config
}

// NewProcessor creates a processor with the default configuration
func NewProcessor() *Processor {
	return &Processor{config: DefaultConfig()}
}

// NewProcessorWithConfig creates a processor with a custom configuration
func NewProcessorWithConfig(config Config) *Processor {
	return &Processor{config: config}
}

// LoadFile reads an image file and prepares it as an upload
func (p *Processor) LoadFile(path string) (types.CapturedImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.CapturedImage{}, fmt.Errorf("failed to read image file: %w", err)
	}
	return p.PrepareUpload(filepath.Base(path), data)
}

// PrepareUpload builds a CapturedImage from a user-selected file
func (p *Processor) PrepareUpload(name string, data []byte) (types.CapturedImage, error) {
	return p.prepare(types.SourceUpload, name, data)
}

// PrepareCapture builds a CapturedImage from clipboard bytes (PNG on every supported platform)
func (p *Processor) PrepareCapture(data []byte) (types.CapturedImage, error) {
	return p.prepare(types.SourceCapture, "", data)
}

func (p *Processor) prepare(source types.Source, name string, data []byte) (types.CapturedImage, error) {
	if len(data) == 0 {
		return types.CapturedImage{}, fmt.Errorf("%w: empty payload", ErrNotImage)
	}
	if p.config.MaxUploadBytes > 0 && len(data) > p.config.MaxUploadBytes {
		return types.CapturedImage{}, fmt.Errorf("%w: %d bytes (maximum: %d)", ErrTooLarge, len(data), p.config.MaxUploadBytes)
	}

	img, err := p.decodeImageFromBytes(data)
	if err != nil {
		return types.CapturedImage{}, err
	}
	if err := p.ValidateImage(img); err != nil {
		return types.CapturedImage{}, err
	}

	payload, err := p.resizeIfNeeded(img, data)
	if err != nil {
		return types.CapturedImage{}, err
	}

	uri, mime, err := EncodeDataURI(payload)
	if err != nil {
		return types.CapturedImage{}, err
	}

	b := img.Bounds()
	return types.CapturedImage{
		ID:      types.NewImageID(),
		Source:  source,
		Name:    name,
		MIME:    mime,
		DataURI: uri,
		Width:   b.Dx(),
		Height:  b.Dy(),
		Size:    len(payload),
	}, nil
}

// ValidateImage checks that an image meets the minimum size
func (p *Processor) ValidateImage(img image.Image) error {
	b := img.Bounds()
	if b.Dx() < p.config.MinImageSize || b.Dy() < p.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)", b.Dx(), b.Dy(), p.config.MinImageSize)
	}
	return nil
}

// resizeIfNeeded keeps the original bytes unless the image exceeds MaxDimension
func (p *Processor) resizeIfNeeded(img image.Image, original []byte) ([]byte, error) {
	maxDim := p.config.MaxDimension
	if maxDim <= 0 {
		return original, nil
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return original, nil
	}
	if w >= h {
		img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	} else {
		img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if mimetype.Detect(original).Is("image/png") {
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode resized image: %w", err)
		}
		return buf.Bytes(), nil
	}
	quality := p.config.JPEGQuality
	if quality < 1 || quality > 100 {
		quality = 90
	}
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeImageFromBytes decodes an image from byte data with WebP support
func (p *Processor) decodeImageFromBytes(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("%w: unknown or unsupported format (%s)", ErrNotImage, mimetype.Detect(data).String())
}

// EncodeDataURI wraps image bytes in a base64 data URI, returning it with the sniffed MIME type
func EncodeDataURI(data []byte) (string, string, error) {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", "", fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
	}
	mime := mt.String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), mime, nil
}

// ParseDataURI splits a base64 data URI into its MIME type and decoded payload
func ParseDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing data: scheme", ErrMalformedDataURI)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload", ErrMalformedDataURI)
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrMalformedDataURI)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedDataURI, err)
	}
	return mime, data, nil
}
