package samgov

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	rpdf "rsc.io/pdf"

	"github.com/kellerb/sam-watch/internal/models"
)

const maxAttachmentBytes = 20 << 20

// ExtractAttachmentLineItems downloads a PDF attachment and runs the
// line-item strategy chain over its text. Best-effort: any failure returns an
// empty result, never an abort of the surrounding flow.
func (c *Client) ExtractAttachmentLineItems(ctx context.Context, att models.Attachment) ([]LineItem, string, error) {
	if att.URL == "" {
		return nil, "", fmt.Errorf("attachment has no url")
	}
	if att.MimeType != "" && !strings.Contains(att.MimeType, "pdf") &&
		!strings.HasSuffix(strings.ToLower(att.Name), ".pdf") {
		return nil, "", fmt.Errorf("attachment %q is not a pdf", att.Name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating attachment request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("attachment request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &APIError{StatusCode: resp.StatusCode}
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes))
	if err != nil {
		return nil, "", fmt.Errorf("reading attachment: %w", err)
	}

	text, err := extractPDFText(content)
	if err != nil {
		return nil, "", fmt.Errorf("extracting pdf text: %w", err)
	}

	items, strategy := ExtractLineItems(text)
	return items, strategy, nil
}

func extractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			builder.WriteString(fragment.S)
			builder.WriteString(" ")
		}
		builder.WriteString("\n")
	}

	return builder.String(), nil
}
