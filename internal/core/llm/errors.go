package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/docchat-ai/docchat/internal/core"
)

// classifyProviderError maps Gemini transport errors onto the shared
// taxonomy. The client may surface either googleapi (REST) or gRPC
// status errors depending on transport, so both are checked.
func classifyProviderError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", core.ErrEmbeddingRateLimited, err)
		case gerr.Code == http.StatusBadRequest && mentionsTokenLimit(gerr.Message):
			return fmt.Errorf("%w: %v", core.ErrEmbeddingTooLong, err)
		}
		return fmt.Errorf("%w: %v", core.ErrEmbeddingUnavailable, err)
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return fmt.Errorf("%w: %v", core.ErrEmbeddingRateLimited, err)
		case codes.InvalidArgument:
			if mentionsTokenLimit(st.Message()) {
				return fmt.Errorf("%w: %v", core.ErrEmbeddingTooLong, err)
			}
		}
	}

	return fmt.Errorf("%w: %v", core.ErrEmbeddingUnavailable, err)
}

func mentionsTokenLimit(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "token") || strings.Contains(msg, "too long") || strings.Contains(msg, "payload size")
}
