package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"quill/internal/config"
	"quill/internal/services"
)

// DocsClient publishes transcripts on the hosted document service so
// long texts can be delivered as a link.
type DocsClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewDocsClient builds a DocumentCreator from configuration. Returns nil
// when no document service is configured.
func NewDocsClient(cfg *config.Config) *DocsClient {
	baseURL := strings.TrimSpace(cfg.Delivery.DocsURL)
	if baseURL == "" {
		return nil
	}
	timeout := time.Duration(cfg.Delivery.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &DocsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(cfg.Delivery.DocsToken),
		client:  &http.Client{Timeout: timeout},
	}
}

func (d *DocsClient) CreateDocument(ctx context.Context, title, content string) (string, error) {
	payload := struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}{Title: title, Content: content}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/documents", bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("build document request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", classifyTransportError("create document", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", classifyStatus("create document", resp)
	}

	var result struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", services.Wrap(services.ErrTransient, "delivery", "create document", "Document service returned malformed JSON", err)
	}
	if strings.TrimSpace(result.URL) == "" {
		return "", services.Wrap(services.ErrTransient, "delivery", "create document", "Document service returned no URL", nil)
	}
	return result.URL, nil
}
