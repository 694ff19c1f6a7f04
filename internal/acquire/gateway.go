package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quill/internal/config"
	"quill/internal/services"
)

// GatewayClient fetches media from the HTTP gateway fronting chat sources.
type GatewayClient struct {
	baseURL   string
	authToken string
	client    *http.Client
}

// NewGatewayClient builds a Fetcher for the configured acquisition gateway.
func NewGatewayClient(cfg *config.Config) *GatewayClient {
	timeout := time.Duration(cfg.Acquisition.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GatewayClient{
		baseURL:   strings.TrimRight(cfg.Acquisition.GatewayURL, "/"),
		authToken: cfg.Acquisition.AuthToken,
		client:    &http.Client{Timeout: timeout},
	}
}

func (g *GatewayClient) Describe(ctx context.Context, sourceRef string) (SourceInfo, error) {
	endpoint := fmt.Sprintf("%s/files/%s", g.baseURL, url.PathEscape(sourceRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return SourceInfo{}, fmt.Errorf("build describe request: %w", err)
	}
	g.authorize(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return SourceInfo{}, classifyTransportError("describe", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SourceInfo{}, classifyStatus("describe", resp)
	}

	var payload struct {
		Size     int64  `json:"size"`
		FileName string `json:"file_name"`
		MimeType string `json:"mime_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return SourceInfo{}, services.Wrap(services.ErrTransient, "acquisition", "describe", "Gateway returned malformed metadata", err)
	}
	return SourceInfo{Size: payload.Size, FileName: payload.FileName, MimeType: payload.MimeType}, nil
}

func (g *GatewayClient) Download(ctx context.Context, sourceRef string, w io.Writer) (int64, error) {
	resp, err := g.content(ctx, sourceRef, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, classifyStatus("download", resp)
	}
	written, err := io.Copy(w, resp.Body)
	if err != nil {
		return written, classifyTransportError("download", err)
	}
	return written, nil
}

func (g *GatewayClient) DownloadRange(ctx context.Context, sourceRef string, w io.Writer, offset, length int64) (int64, error) {
	rangeHeader := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	resp, err := g.content(ctx, sourceRef, rangeHeader)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// A 200 means the gateway ignored the range header and is sending
		// the whole object from its head. That is only usable when the
		// requested range starts at byte zero; at any other offset the
		// copy below would splice head bytes into the middle of the file.
		if offset != 0 {
			return 0, services.Wrap(
				services.ErrValidation,
				"acquisition",
				"download range",
				"Gateway does not support resuming from an offset",
				nil,
			)
		}
	default:
		return 0, classifyStatus("download range", resp)
	}
	written, err := io.Copy(w, io.LimitReader(resp.Body, length))
	if err != nil {
		return written, classifyTransportError("download range", err)
	}
	return written, nil
}

func (g *GatewayClient) content(ctx context.Context, sourceRef, rangeHeader string) (*http.Response, error) {
	endpoint := fmt.Sprintf("%s/files/%s/content", g.baseURL, url.PathEscape(sourceRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build content request: %w", err)
	}
	g.authorize(req)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, classifyTransportError("download", err)
	}
	return resp, nil
}

func (g *GatewayClient) authorize(req *http.Request) {
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
		return services.Wrap(services.ErrNotFound, "acquisition", operation, message, nil)
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return services.Wrap(services.ErrSizeExceeded, "acquisition", operation, message, nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "acquisition", operation, message, nil)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return services.Wrap(services.ErrTransient, "acquisition", operation, message, nil)
	default:
		return services.Wrap(services.ErrValidation, "acquisition", operation, message, nil)
	}
}

func classifyTransportError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if timeoutError(err) {
		return services.Wrap(services.ErrTimeout, "acquisition", operation, "Gateway request timed out", err)
	}
	return services.Wrap(services.ErrTransient, "acquisition", operation, "Gateway request failed", err)
}

func timeoutError(err error) bool {
	type timeouter interface{ Timeout() bool }
	for err != nil {
		if t, ok := err.(timeouter); ok && t.Timeout() {
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return false
}
