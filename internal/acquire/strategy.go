package acquire

import (
	"fmt"

	"quill/internal/queue"
	"quill/internal/services"
)

// SelectStrategy decides how a source of declaredSize bytes is transferred.
// Sizes at or below directLimit go direct, sizes up to maxSize are chunked,
// anything larger is rejected before any bytes move. An unknown size (zero)
// goes direct with a post-transfer check by the caller.
func SelectStrategy(declaredSize, directLimit, maxSize int64) (queue.Strategy, error) {
	if declaredSize > maxSize {
		return "", services.Wrap(
			services.ErrSizeExceeded,
			"acquisition",
			"select strategy",
			fmt.Sprintf("Source is %d bytes, above the %d byte limit", declaredSize, maxSize),
			nil,
		)
	}
	if declaredSize > 0 && declaredSize > directLimit {
		return queue.StrategyChunked, nil
	}
	return queue.StrategyDirect, nil
}
