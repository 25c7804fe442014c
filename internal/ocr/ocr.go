// Package ocr defines the optional text-extraction input path. The solver
// treats OCR purely as an alternate source of problem text; when it is
// disabled or yields nothing, the model's own extraction phase runs instead.
package ocr

import (
	"context"
	"errors"
)

// ErrUnavailable indicates no OCR backend is configured.
var ErrUnavailable = errors.New("ocr unavailable")

// Extractor extracts math problem text from an image.
type Extractor interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// Disabled is the no-backend implementation.
type Disabled struct{}

func (Disabled) ExtractText(context.Context, []byte) (string, error) {
	return "", ErrUnavailable
}
