package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/e2g-ufsm/flowbot/internal/models"
)

// maxDownloadBytes caps how much of an attachment is read.
const maxDownloadBytes = 20 << 20

// HTTPFetcher downloads attachments whose media reference is an HTTP URL,
// as delivered by the Twilio webhook.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher with a bounded request timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: 30 * time.Second}}
}

// FetchMedia downloads the referenced attachment. The file extension is
// derived from the response Content-Type.
func (f *HTTPFetcher) FetchMedia(ctx context.Context, msg models.Message) ([]byte, string, error) {
	if !strings.HasPrefix(msg.Media, "http://") && !strings.HasPrefix(msg.Media, "https://") {
		return nil, "", fmt.Errorf("media reference %q is not a URL", msg.Media)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, msg.Media, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build media request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media body: %w", err)
	}

	return data, extensionFor(resp.Header.Get("Content-Type")), nil
}

func extensionFor(contentType string) string {
	if contentType == "" {
		return ""
	}
	exts, err := mime.ExtensionsByType(contentType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
