package acquire

import (
	"errors"
	"testing"

	"quill/internal/queue"
	"quill/internal/services"
)

func TestSelectStrategy(t *testing.T) {
	const (
		directLimit = 20 * 1024 * 1024
		maxSize     = 2000 * 1024 * 1024
	)

	cases := []struct {
		name     string
		declared int64
		want     queue.Strategy
		wantErr  bool
	}{
		{name: "small goes direct", declared: 1024, want: queue.StrategyDirect},
		{name: "at direct limit", declared: directLimit, want: queue.StrategyDirect},
		{name: "just above direct limit", declared: directLimit + 1, want: queue.StrategyChunked},
		{name: "at max size", declared: maxSize, want: queue.StrategyChunked},
		{name: "above max size", declared: maxSize + 1, wantErr: true},
		{name: "unknown size goes direct", declared: 0, want: queue.StrategyDirect},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			strategy, err := SelectStrategy(tc.declared, directLimit, maxSize)
			if tc.wantErr {
				if !errors.Is(err, services.ErrSizeExceeded) {
					t.Fatalf("expected size exceeded, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectStrategy: %v", err)
			}
			if strategy != tc.want {
				t.Fatalf("strategy = %s, want %s", strategy, tc.want)
			}
		})
	}
}
