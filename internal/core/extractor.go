package core

import "context"

// DocumentExtractor turns a raw stored document into plain text. The
// contentType hint selects the parsing strategy (markdown passes
// through, binary formats go through a converter).
type DocumentExtractor interface {
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)
}
