package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindAndStatus(t *testing.T) {
	tests := []struct {
		err    error
		kind   string
		status int
	}{
		{ErrBadRequest, "BAD_REQUEST", http.StatusBadRequest},
		{ErrUnsupportedMedia, "UNSUPPORTED_MEDIA_TYPE", http.StatusUnsupportedMediaType},
		{ErrConversion, "CONVERSION_FAILED", http.StatusUnprocessableEntity},
		{ErrImageConversion, "IMAGE_CONVERSION_FAILED", http.StatusUnprocessableEntity},
		{ErrParse, "PARSE_ERROR", http.StatusBadGateway},
		{ErrVLM, "VLM_ERROR", http.StatusBadGateway},
		{errors.New("something else"), "INTERNAL", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		// Classification must survive wrapping.
		wrapped := fmt.Errorf("context: %w", tt.err)
		if got := Kind(wrapped); got != tt.kind {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.kind)
		}
		if got := Status(wrapped); got != tt.status {
			t.Errorf("Status(%v) = %d, want %d", tt.err, got, tt.status)
		}
	}
}
