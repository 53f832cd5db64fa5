// Package worker はバックグラウンドの定期処理を提供する。
package worker

import (
	"context"
	"log/slog"
	"time"
)

// RetryProcessor は1サイクル分の再試行処理能力のインターフェース。
type RetryProcessor interface {
	ProcessDueRetries(ctx context.Context) (int, error)
}

// RetryWorker は一定間隔で再試行サイクルを起動するスケジューラ。
// コンテキストのキャンセルで明示的に停止する。
type RetryWorker struct {
	processor RetryProcessor
	interval  time.Duration
}

// NewRetryWorker はRetryWorkerを生成する。
func NewRetryWorker(processor RetryProcessor, interval time.Duration) *RetryWorker {
	return &RetryWorker{processor: processor, interval: interval}
}

// Run はctxがキャンセルされるまで再試行サイクルを繰り返す。
// サイクル内のエラーはログに残すだけでループは止めない。
func (w *RetryWorker) Run(ctx context.Context) {
	slog.InfoContext(ctx, "retry worker started", "interval", w.interval.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "retry worker stopped")
			return
		case <-ticker.C:
			processed, err := w.processor.ProcessDueRetries(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				slog.ErrorContext(ctx, "retry cycle failed", "error", err)
				continue
			}
			if processed > 0 {
				slog.InfoContext(ctx, "retry cycle completed", "processed", processed)
			}
		}
	}
}
