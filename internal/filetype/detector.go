package filetype

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// ErrUnsupported is returned when content is not of the kind an operation needs.
var ErrUnsupported = errors.New("unsupported file type")

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	IsPDF       bool
	IsImage     bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the content type using magic bytes, never a filename.
func (d *Detector) Detect(data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	d.classify(info)
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Int("bytes", len(data)).Msg("detected file type")
	return info
}

// classify marks the kinds the engine accepts.
func (d *Detector) classify(info *FileTypeInfo) {
	switch mimeType := info.MIMEType; {
	case mimeType == "application/pdf":
		info.IsPDF = true
		info.Description = "PDF document"

	// pdfcpu image watermarks read these
	case strings.HasPrefix(mimeType, "image/png"),
		strings.HasPrefix(mimeType, "image/jpeg"):
		info.IsImage = true
		info.Description = "Image file"

	default:
		info.Description = fmt.Sprintf("Unsupported file type: %s", mimeType)
	}
}

// RequirePDF fails unless data is a PDF.
func (d *Detector) RequirePDF(data []byte) error {
	if info := d.Detect(data); !info.IsPDF {
		return fmt.Errorf("%w: %s, want a PDF document", ErrUnsupported, info.MIMEType)
	}
	return nil
}

// RequireImage fails unless data is a PNG or JPEG image.
func (d *Detector) RequireImage(data []byte) error {
	if info := d.Detect(data); !info.IsImage {
		return fmt.Errorf("%w: %s, want a PNG or JPEG image", ErrUnsupported, info.MIMEType)
	}
	return nil
}
