package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/docchat-ai/docchat/internal/core"
)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
// Plain text and markdown pass straight through; binary formats (pdf,
// docx, html, ...) go through the converter.
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	if isPlainText(contentType) {
		return string(data), nil
	}

	res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv extract (%s): %w", contentType, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return res.Body, nil
}

func isPlainText(contentType string) bool {
	ct := strings.ToLower(contentType)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	switch strings.TrimSpace(ct) {
	case "text/plain", "text/markdown", "text/x-markdown", "":
		return true
	}
	return false
}

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)
