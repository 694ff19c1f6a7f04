package transcribe

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

const defaultRequestTimeout = 300 * time.Second

// Client posts segment audio to the speech-to-text backend.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewClient builds a transcription client from configuration.
func NewClient(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.Transcription.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL: strings.TrimSpace(cfg.Transcription.BaseURL),
		apiKey:  strings.TrimSpace(cfg.Transcription.APIKey),
		model:   strings.TrimSpace(cfg.Transcription.Model),
		client:  &http.Client{Timeout: timeout},
	}
}

// Transcribe uploads one audio file and returns its recognized text. Errors
// carry the transient marker when the request is worth retrying.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	body, contentType, err := c.encodeRequest(audioPath)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, body)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp)
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", services.Wrap(services.ErrTransient, "transcription", "decode response", "Speech service returned malformed JSON", err)
	}
	return payload.Text, nil
}

func (c *Client) encodeRequest(audioPath string) (io.Reader, string, error) {
	audio, err := os.Open(audioPath)
	if err != nil {
		return nil, "", services.Wrap(services.ErrValidation, "transcription", "open segment", "Segment audio file is missing", err)
	}
	defer audio.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, "", services.Wrap(services.ErrValidation, "transcription", "read segment", "Failed to read segment audio", err)
	}
	if c.model != "" {
		if err := writer.WriteField("model", c.model); err != nil {
			return nil, "", fmt.Errorf("build multipart body: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("build multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

func classifyStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(body))
	message := fmt.Sprintf("Speech service returned HTTP %d", resp.StatusCode)
	if detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "transcription", "transcribe segment", message, nil)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return services.Wrap(services.ErrTransient, "transcription", "transcribe segment", message, nil)
	default:
		return services.Wrap(services.ErrValidation, "transcription", "transcribe segment", message, nil)
	}
}

func classifyTransportError(err error) error {
	type timeouter interface{ Timeout() bool }
	inner := err
	for inner != nil {
		if t, ok := inner.(timeouter); ok && t.Timeout() {
			return services.Wrap(services.ErrTimeout, "transcription", "transcribe segment", "Speech service request timed out", err)
		}
		unwrapper, ok := inner.(interface{ Unwrap() error })
		if !ok {
			break
		}
		inner = unwrapper.Unwrap()
	}
	return services.Wrap(services.ErrTransient, "transcription", "transcribe segment", "Speech service request failed", err)
}
