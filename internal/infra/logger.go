package infra

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"

	"mail-delivery-service/config"
)

// TraceHandler は現在のスパンのトレース情報をログレコードに付与するslogハンドラ。
// トレーシング無効時は素通しする。
type TraceHandler struct {
	next        slog.Handler
	projectID   string
	otelEnabled bool
}

// NewTraceHandler はトレース情報付きのslogハンドラを生成する。
func NewTraceHandler(next slog.Handler, cfg *config.Config) *TraceHandler {
	return &TraceHandler{
		next:        next,
		projectID:   cfg.GoogleCloudProject,
		otelEnabled: cfg.OtelEnabled,
	}
}

// Enabled はハンドラがログを処理するかどうかを返す。
func (h *TraceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle はログレコードにトレース属性を付与して次のハンドラへ渡す。
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.otelEnabled {
		r.AddAttrs(h.traceAttrs(ctx)...)
	}
	return h.next.Handle(ctx, r)
}

// traceAttrs は現在のスパンから付与すべきログ属性を導出する。
// 有効なスパンが無ければ空を返す。
func (h *TraceHandler) traceAttrs(ctx context.Context) []slog.Attr {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return nil
	}

	traceID := spanCtx.TraceID().String()
	spanID := spanCtx.SpanID().String()

	attrs := []slog.Attr{
		slog.String("trace", traceID),
		slog.String("spanId", spanID),
		slog.Bool("traceSampled", spanCtx.IsSampled()),
	}

	// Google Cloud Logging連携用フィールド
	if h.projectID != "" {
		attrs = append(attrs,
			slog.String("logging.googleapis.com/trace",
				"projects/"+h.projectID+"/traces/"+traceID),
			slog.String("logging.googleapis.com/spanId", spanID),
		)
	}
	return attrs
}

// WithAttrs は属性を追加した新しいハンドラを返す。
func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{
		next:        h.next.WithAttrs(attrs),
		projectID:   h.projectID,
		otelEnabled: h.otelEnabled,
	}
}

// WithGroup はグループを追加した新しいハンドラを返す。
func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{
		next:        h.next.WithGroup(name),
		projectID:   h.projectID,
		otelEnabled: h.otelEnabled,
	}
}

// SetupLogger はトレース情報付きのJSONロガーをグローバルに設定する。
func SetupLogger(cfg *config.Config, level slog.Level) {
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(NewTraceHandler(jsonHandler, cfg)))
}
