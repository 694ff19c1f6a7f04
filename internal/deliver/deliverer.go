package deliver

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"quill/internal/config"
	"quill/internal/logging"
	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/stage"
)

// Deliverer returns the finished transcript to its owner. Short texts go
// inline; longer texts are sent as a file attachment while they fit the
// attachment limit; anything bigger becomes a hosted document link, with
// a last-resort file attempt when the document service is unavailable.
type Deliverer struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	sink   Sink
	docs   DocumentCreator
}

// NewDeliverer constructs the delivery handler using the HTTP gateway.
func NewDeliverer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Deliverer {
	var docs DocumentCreator
	if client := NewDocsClient(cfg); client != nil {
		docs = client
	}
	return NewDelivererWithSinks(cfg, store, logger, NewGatewaySink(cfg), docs)
}

// NewDelivererWithSinks allows injecting the sink and document creator
// (used in tests).
func NewDelivererWithSinks(cfg *config.Config, store *queue.Store, logger *slog.Logger, sink Sink, docs DocumentCreator) *Deliverer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "deliverer"))
	}
	return &Deliverer{store: store, cfg: cfg, logger: stageLogger, sink: sink, docs: docs}
}

// SetLogger swaps in the stage-scoped logger before execution.
func (d *Deliverer) SetLogger(logger *slog.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

func (d *Deliverer) Prepare(ctx context.Context, job *queue.Job) error {
	if strings.TrimSpace(job.OwnerID) == "" {
		return services.Wrap(services.ErrValidation, "delivery", "validate input", "Job has no owner", nil)
	}
	if transcriptPath(job) == "" {
		return services.Wrap(services.ErrValidation, "delivery", "validate input", "Job has no transcript to deliver", nil)
	}
	job.SetProgress("Delivering", "Returning transcript", 0)
	return nil
}

func (d *Deliverer) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, d.logger)

	// A re-run after a crash must not send the transcript twice.
	if job.DeliveryChannel != "" && job.DeliveryRef != "" {
		logger.Info(
			"transcript already delivered, skipping",
			logging.String("channel", job.DeliveryChannel),
			logging.String("delivery_ref", job.DeliveryRef),
		)
		job.SetProgressComplete("Delivered", "Transcript already delivered")
		return nil
	}

	path := transcriptPath(job)
	data, err := os.ReadFile(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "delivery", "read transcript", "Transcript file is unreadable", err)
	}
	text := strings.TrimSpace(string(data))
	length := utf8.RuneCountInString(text)

	channel, ref, err := d.deliver(ctx, logger, job, path, text, length)
	if err != nil {
		return err
	}

	job.DeliveryChannel = string(channel)
	job.DeliveryRef = ref
	job.SetProgressComplete("Delivered", fmt.Sprintf("Transcript delivered via %s", channel))
	logger.Info(
		"delivery completed",
		logging.String("channel", string(channel)),
		logging.String("delivery_ref", ref),
		logging.Int("transcript_chars", length),
	)
	return nil
}

func (d *Deliverer) deliver(ctx context.Context, logger *slog.Logger, job *queue.Job, path, text string, length int) (Channel, string, error) {
	if length <= d.inlineLimit() {
		ref, err := d.sink.SendMessage(ctx, job.OwnerID, text)
		if err != nil {
			return "", "", services.Wrap(services.ErrDeliveryFailed, "delivery", "send message", "Failed to deliver transcript inline", err)
		}
		return ChannelInline, ref, nil
	}

	// Within the attachment limit the transcript goes out as a file.
	if d.withinFileLimit(int64(len(text))) {
		return d.sendFile(ctx, job, path, text)
	}

	// Too big to attach: host the text and deliver a link instead.
	if d.docs != nil {
		docURL, err := d.docs.CreateDocument(ctx, documentTitle(job), text)
		if err == nil {
			if _, err := d.sink.SendMessage(ctx, job.OwnerID, "Your transcript is ready: "+docURL); err == nil {
				return ChannelDocument, docURL, nil
			}
			logger.Warn("failed to deliver document link, falling back to file", logging.String("document_url", docURL))
		} else {
			logger.Warn("document service unavailable, falling back to file", logging.Error(err))
		}
	}

	// Last resort: attempt the attachment anyway and let the gateway decide.
	return d.sendFile(ctx, job, path, text)
}

func (d *Deliverer) withinFileLimit(size int64) bool {
	limit := d.cfg.Delivery.FileLimitBytes
	return limit <= 0 || size <= limit
}

func (d *Deliverer) sendFile(ctx context.Context, job *queue.Job, path, text string) (Channel, string, error) {
	caption := fmt.Sprintf("Transcript (%s)", humanize.Bytes(uint64(len(text))))
	ref, err := d.sink.SendDocument(ctx, job.OwnerID, path, caption)
	if err != nil {
		return "", "", services.Wrap(services.ErrDeliveryFailed, "delivery", "send file", "Failed to deliver transcript file", err)
	}
	return ChannelFile, ref, nil
}

func (d *Deliverer) inlineLimit() int {
	if d.cfg.Delivery.InlineLimitChars > 0 {
		return d.cfg.Delivery.InlineLimitChars
	}
	return 4096
}

// HealthCheck verifies the delivery gateway configuration.
func (d *Deliverer) HealthCheck(ctx context.Context) stage.Health {
	const name = "deliverer"
	if d.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	gatewayURL := strings.TrimSpace(d.cfg.Delivery.GatewayURL)
	if gatewayURL == "" {
		return stage.Unhealthy(name, "delivery gateway not configured")
	}
	if _, err := url.Parse(gatewayURL); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("invalid gateway url: %v", err))
	}
	if d.sink == nil {
		return stage.Unhealthy(name, "delivery sink unavailable")
	}
	return stage.Healthy(name)
}

func transcriptPath(job *queue.Job) string {
	if strings.TrimSpace(job.FormattedFile) != "" {
		return job.FormattedFile
	}
	return strings.TrimSpace(job.TranscriptFile)
}

func documentTitle(job *queue.Job) string {
	return fmt.Sprintf("Transcript %s", job.SourceRef)
}
