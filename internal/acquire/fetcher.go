package acquire

import (
	"context"
	"io"
)

// SourceInfo describes a remote media object before transfer.
type SourceInfo struct {
	Size     int64
	FileName string
	MimeType string
}

// Fetcher abstracts the remote media gateway holding source recordings.
type Fetcher interface {
	// Describe returns metadata for a source reference without transferring
	// content. A zero Size means the gateway does not know the size.
	Describe(ctx context.Context, sourceRef string) (SourceInfo, error)
	// Download streams the whole object into w.
	Download(ctx context.Context, sourceRef string, w io.Writer) (int64, error)
	// DownloadRange streams length bytes starting at offset into w. It
	// returns the number of bytes written; fewer than length only at the
	// end of the object.
	DownloadRange(ctx context.Context, sourceRef string, w io.Writer, offset, length int64) (int64, error)
}
