package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"quill/internal/config"
	"quill/internal/logging"
	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/stage"
)

// Acquirer pulls source media from the gateway into the job workspace.
type Acquirer struct {
	store   *queue.Store
	cfg     *config.Config
	logger  *slog.Logger
	fetcher Fetcher
}

// NewAcquirer constructs the acquisition handler using the HTTP gateway.
func NewAcquirer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Acquirer {
	return NewAcquirerWithFetcher(cfg, store, logger, NewGatewayClient(cfg))
}

// NewAcquirerWithFetcher allows injecting the fetcher (used in tests).
func NewAcquirerWithFetcher(cfg *config.Config, store *queue.Store, logger *slog.Logger, fetcher Fetcher) *Acquirer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "acquirer"))
	}
	return &Acquirer{store: store, cfg: cfg, logger: stageLogger, fetcher: fetcher}
}

// SetLogger swaps in the stage-scoped logger before execution.
func (a *Acquirer) SetLogger(logger *slog.Logger) {
	if logger != nil {
		a.logger = logger
	}
}

func (a *Acquirer) Prepare(ctx context.Context, job *queue.Job) error {
	if strings.TrimSpace(job.SourceRef) == "" {
		return services.Wrap(services.ErrValidation, "acquisition", "validate input", "Job has no source reference", nil)
	}

	workspace := filepath.Join(a.cfg.Paths.WorkspaceDir, fmt.Sprintf("job-%d", job.ID))
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "acquisition", "ensure workspace", "Failed to create job workspace; check workspace_dir permissions", err)
	}
	job.WorkspaceDir = workspace
	job.SetProgress("Acquiring", "Fetching source media", 0)
	return nil
}

func (a *Acquirer) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, a.logger)

	declared := job.DeclaredSize
	var info SourceInfo
	if declared <= 0 {
		described, err := a.fetcher.Describe(ctx, job.SourceRef)
		if err != nil {
			return err
		}
		info = described
		declared = described.Size
		if declared > 0 {
			job.DeclaredSize = declared
		}
	}

	strategy, err := SelectStrategy(declared, a.cfg.Acquisition.DirectLimitBytes, a.cfg.Acquisition.MaxSizeBytes)
	if err != nil {
		return err
	}
	job.Strategy = strategy

	dest := filepath.Join(job.WorkspaceDir, mediaFileName(job.SourceRef, info.FileName))
	logger.Info(
		"starting media download",
		logging.String("strategy", string(strategy)),
		logging.Int64("declared_size", declared),
		logging.String("media_file", dest),
	)

	var written int64
	switch strategy {
	case queue.StrategyChunked:
		written, err = downloadChunked(ctx, a.fetcher, job.SourceRef, dest, declared, downloadOptions{
			chunkBytes:    a.cfg.Acquisition.ChunkBytes,
			retryAttempts: a.cfg.Acquisition.RetryAttempts,
			retryBackoff:  time.Duration(a.cfg.Acquisition.RetryBackoff) * time.Second,
			cancelled: func(ctx context.Context) bool {
				flagged, err := a.store.CancelRequested(ctx, job.ID)
				return err == nil && flagged
			},
		})
	default:
		written, err = downloadDirect(ctx, a.fetcher, job.SourceRef, dest)
	}
	if err != nil {
		return err
	}

	if declared > 0 && written != declared {
		return services.Wrap(
			services.ErrValidation,
			"acquisition",
			"verify size",
			fmt.Sprintf("Downloaded %d bytes but gateway declared %d", written, declared),
			nil,
		)
	}
	if declared <= 0 && written > a.cfg.Acquisition.MaxSizeBytes {
		// The gateway could not tell us the size up front; enforce the cap
		// after the fact.
		_ = os.Remove(dest)
		return services.Wrap(
			services.ErrSizeExceeded,
			"acquisition",
			"verify size",
			fmt.Sprintf("Source is %d bytes, above the %d byte limit", written, a.cfg.Acquisition.MaxSizeBytes),
			nil,
		)
	}

	job.MediaFile = dest
	job.SetProgressComplete("Acquired", fmt.Sprintf("Downloaded %d bytes", written))
	logger.Info(
		"acquisition completed",
		logging.String("media_file", dest),
		logging.Int64("bytes", written),
		logging.String("strategy", string(strategy)),
	)
	return nil
}

// HealthCheck verifies the gateway configuration.
func (a *Acquirer) HealthCheck(ctx context.Context) stage.Health {
	const name = "acquirer"
	if a.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	gatewayURL := strings.TrimSpace(a.cfg.Acquisition.GatewayURL)
	if gatewayURL == "" {
		return stage.Unhealthy(name, "acquisition gateway not configured")
	}
	if _, err := url.Parse(gatewayURL); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("invalid gateway url: %v", err))
	}
	if a.fetcher == nil {
		return stage.Unhealthy(name, "fetcher unavailable")
	}
	return stage.Healthy(name)
}

// mediaFileName picks a workspace file name, preferring the gateway's
// reported name and falling back to a sanitized source reference.
func mediaFileName(sourceRef, reported string) string {
	name := strings.TrimSpace(reported)
	if name != "" {
		name = path.Base(name)
	}
	if name == "" || name == "." || name == "/" {
		ext := path.Ext(sourceRef)
		if ext == "" {
			ext = ".bin"
		}
		name = "media" + ext
	}
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-", "*", "-", "?", "", "\"", "", "<", "", ">", "", "|", "")
	return strings.TrimSpace(replacer.Replace(name))
}
