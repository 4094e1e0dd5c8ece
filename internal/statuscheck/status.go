package statuscheck

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Pinger models the minimal capability we need from a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BucketChecker is satisfied by the S3 client.
type BucketChecker interface {
	HeadBucket(ctx context.Context) error
}

// Checker aggregates health checks for the result store, object storage and
// the two PDF engines.
type Checker struct {
	redis Pinger
	s3    BucketChecker
	probe []byte
}

//go:embed probe.pdf
var defaultProbe []byte

// Options configures the Checker.
type Options struct {
	Redis Pinger
	// S3 is nil when uploads are disabled.
	S3 BucketChecker
	// Probe is a small PDF opened by both engines on every check. Defaults
	// to an embedded blank page.
	Probe []byte
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis  Status `json:"redis"`
	S3     Status `json:"s3"`
	PDFCPU Status `json:"pdfcpu"`
	MuPDF  Status `json:"mupdf"`
}

// Healthy reports whether every required subsystem is up. S3 counts only
// when configured.
func (s Summary) Healthy() bool {
	return s.Redis.OK && s.PDFCPU.OK && s.MuPDF.OK && (s.S3.OK || s.S3.Message == msgDisabled)
}

const msgDisabled = "Disabled"

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	probe := opts.Probe
	if probe == nil {
		probe = defaultProbe
	}
	return &Checker{redis: opts.Redis, s3: opts.S3, probe: probe}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:  c.checkRedis(ctx),
		S3:     c.checkS3(ctx),
		PDFCPU: c.checkPDFCPU(),
		MuPDF:  c.checkMuPDF(),
	}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: false, Message: "client unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3 == nil {
		return Status{OK: false, Message: msgDisabled}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.s3.HeadBucket(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkPDFCPU() Status {
	if len(c.probe) == 0 {
		return Status{OK: false, Message: "no probe document"}
	}
	n, err := api.PageCount(bytes.NewReader(c.probe), nil)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	if n < 1 {
		return Status{OK: false, Message: "probe has no pages"}
	}
	return Status{OK: true, Message: "Available"}
}

func (c *Checker) checkMuPDF() Status {
	if len(c.probe) == 0 {
		return Status{OK: false, Message: "no probe document"}
	}
	doc, err := fitz.NewFromMemory(c.probe)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	defer doc.Close()
	if doc.NumPage() < 1 {
		return Status{OK: false, Message: "probe has no pages"}
	}
	return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
