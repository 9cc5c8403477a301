package samgov

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/kellerb/sam-watch/internal/models"
)

func TestExtractAttachmentLineItemsRejectsNonPDF(t *testing.T) {
	c := NewClient("key", zap.NewNop().Sugar())
	_, _, err := c.ExtractAttachmentLineItems(context.Background(), models.Attachment{
		Name:     "photo.jpg",
		URL:      "https://example.com/photo.jpg",
		MimeType: "image/jpeg",
	})
	if err == nil {
		t.Fatal("expected rejection of a non-pdf attachment")
	}
}

func TestExtractAttachmentLineItemsRequiresURL(t *testing.T) {
	c := NewClient("key", zap.NewNop().Sugar())
	if _, _, err := c.ExtractAttachmentLineItems(context.Background(), models.Attachment{Name: "a.pdf"}); err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestExtractAttachmentLineItemsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("key", zap.NewNop().Sugar())
	_, _, err := c.ExtractAttachmentLineItems(context.Background(), models.Attachment{
		Name:     "specs.pdf",
		URL:      srv.URL + "/specs.pdf",
		MimeType: "application/pdf",
	})
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 APIError, got %v", err)
	}
}

func TestExtractPDFTextGarbageInput(t *testing.T) {
	if _, err := extractPDFText([]byte("not a pdf at all")); err == nil {
		t.Fatal("expected error for garbage bytes")
	}
}
