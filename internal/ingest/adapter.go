// Package ingest normalizes raw user submissions into plain text.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/spice-intake/internal/common"
	"github.com/Veraticus/spice-intake/internal/model"
)

// ErrUnsupportedInputType is returned for input kinds the adapter cannot handle.
var ErrUnsupportedInputType = errors.New("unsupported input type")

// Recognizer turns a binary payload (image, audio, document) into text.
type Recognizer interface {
	Recognize(ctx context.Context, payload []byte) (string, error)
}

// Adapter converts RawInput payloads into text. Text is normalized locally;
// other kinds go to the Recognizer registered for them.
type Adapter struct {
	recognizers map[model.InputType]Recognizer
	archive     *Archive
	logger      *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithRecognizer registers r for kind, replacing the no-op default.
func WithRecognizer(kind model.InputType, r Recognizer) Option {
	return func(a *Adapter) {
		if r != nil {
			a.recognizers[kind] = r
		}
	}
}

// WithArchive keeps a copy of every binary payload.
func WithArchive(archive *Archive) Option {
	return func(a *Adapter) { a.archive = archive }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// NewAdapter creates an adapter. Kinds without a registered recognizer use
// NopRecognizer and therefore always produce empty text.
func NewAdapter(opts ...Option) *Adapter {
	a := &Adapter{
		recognizers: map[model.InputType]Recognizer{
			model.InputImage:    NopRecognizer{},
			model.InputAudio:    NopRecognizer{},
			model.InputDocument: NopRecognizer{},
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = common.OrDefault(a.logger)
	return a
}

// Ingest returns the text for a payload and, for archived binary kinds, the
// path of the stored copy. Recognition failures yield empty text and a
// warning rather than an error; callers must treat "" as nothing to process.
// Only an unknown kind is an error.
func (a *Adapter) Ingest(ctx context.Context, kind model.InputType, payload []byte) (model.Ingested, error) {
	if kind == model.InputText {
		return model.Ingested{Text: Normalize(string(payload))}, nil
	}

	recognizer, ok := a.recognizers[kind]
	if !ok {
		return model.Ingested{}, fmt.Errorf("%w: %q", ErrUnsupportedInputType, kind)
	}

	var out model.Ingested
	if a.archive != nil {
		out.ArchivePath = a.archive.Save(kind, payload)
	}

	text, err := recognizer.Recognize(ctx, payload)
	if err != nil {
		a.logger.Warn("Recognition failed, treating input as empty",
			"input_type", kind,
			"bytes", len(payload),
			"archive_path", out.ArchivePath,
			"error", err)
		return out, nil
	}

	out.Text = strings.TrimSpace(text)
	return out, nil
}

// Normalize lowercases and trims free text.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// NopRecognizer stands in for a recognition service that is not configured.
type NopRecognizer struct{}

// Recognize always returns an empty string.
func (NopRecognizer) Recognize(context.Context, []byte) (string, error) {
	return "", nil
}
