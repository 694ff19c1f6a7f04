package deliver

import "context"

// Channel identifies how a transcript reached its owner.
type Channel string

const (
	ChannelInline   Channel = "inline"
	ChannelDocument Channel = "document"
	ChannelFile     Channel = "file"
)

// Sink returns transcripts to their owners over the delivery gateway.
type Sink interface {
	// SendMessage delivers text inline and returns the message reference.
	SendMessage(ctx context.Context, ownerID, text string) (string, error)
	// SendDocument delivers a file attachment and returns the message
	// reference.
	SendDocument(ctx context.Context, ownerID, filePath, caption string) (string, error)
}

// DocumentCreator publishes transcript text as a hosted document.
type DocumentCreator interface {
	// CreateDocument returns the public URL of the hosted document.
	CreateDocument(ctx context.Context, title, content string) (string, error)
}
