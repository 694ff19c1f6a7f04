package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quill/internal/config"
	"quill/internal/services"
)

const defaultRequestTimeout = 120 * time.Second

// GatewaySink delivers transcripts through the HTTP gateway fronting
// chat destinations.
type GatewaySink struct {
	baseURL   string
	authToken string
	client    *http.Client
}

// NewGatewaySink builds a Sink for the configured delivery gateway.
func NewGatewaySink(cfg *config.Config) *GatewaySink {
	timeout := time.Duration(cfg.Delivery.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &GatewaySink{
		baseURL:   strings.TrimRight(cfg.Delivery.GatewayURL, "/"),
		authToken: cfg.Delivery.AuthToken,
		client:    &http.Client{Timeout: timeout},
	}
}

func (g *GatewaySink) SendMessage(ctx context.Context, ownerID, text string) (string, error) {
	payload := struct {
		OwnerID string `json:"owner_id"`
		Text    string `json:"text"`
	}{OwnerID: ownerID, Text: text}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/send-message", bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("build message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	g.authorize(req)
	return g.send(req, "send message")
}

func (g *GatewaySink) SendDocument(ctx context.Context, ownerID, filePath, caption string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "delivery", "send document", "Transcript file is missing", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("document", filepath.Base(filePath))
	if err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", services.Wrap(services.ErrValidation, "delivery", "send document", "Failed to read transcript file", err)
	}
	if err := writer.WriteField("owner_id", ownerID); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return "", fmt.Errorf("build multipart body: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/send-document", &buf)
	if err != nil {
		return "", fmt.Errorf("build document request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	g.authorize(req)
	return g.send(req, "send document")
}

func (g *GatewaySink) send(req *http.Request, operation string) (string, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return "", classifyTransportError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(operation, resp)
	}

	var payload struct {
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", services.Wrap(services.ErrTransient, "delivery", operation, "Gateway returned malformed JSON", err)
	}
	if strings.TrimSpace(payload.MessageID) == "" {
		return "", services.Wrap(services.ErrTransient, "delivery", operation, "Gateway returned no message reference", nil)
	}
	return payload.MessageID, nil
}

func (g *GatewaySink) authorize(req *http.Request) {
	if g.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+g.authToken)
	}
}

func classifyStatus(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(body))
	message := fmt.Sprintf("Gateway returned HTTP %d", resp.StatusCode)
	if detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "delivery", operation, message, nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "delivery", operation, message, nil)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return services.Wrap(services.ErrTransient, "delivery", operation, message, nil)
	default:
		return services.Wrap(services.ErrValidation, "delivery", operation, message, nil)
	}
}

func classifyTransportError(operation string, err error) error {
	type timeouter interface{ Timeout() bool }
	inner := err
	for inner != nil {
		if t, ok := inner.(timeouter); ok && t.Timeout() {
			return services.Wrap(services.ErrTimeout, "delivery", operation, "Gateway request timed out", err)
		}
		unwrapper, ok := inner.(interface{ Unwrap() error })
		if !ok {
			break
		}
		inner = unwrapper.Unwrap()
	}
	return services.Wrap(services.ErrTransient, "delivery", operation, "Gateway request failed", err)
}
