// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mail-delivery-service/config"
	"mail-delivery-service/internal/handler"
	"mail-delivery-service/internal/infra"
	"mail-delivery-service/internal/middleware"
	"mail-delivery-service/internal/repository"
	"mail-delivery-service/internal/secretbox"
	"mail-delivery-service/internal/transport"
	"mail-delivery-service/internal/usecase"
	"mail-delivery-service/internal/worker"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// ログレベル設定
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg, logLevel)

	// DB初期化
	db, err := infra.NewDB(cfg.DatabaseURL, cfg)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}

	// 署名鍵の暗号化バックエンド選択
	var cipher usecase.SecretCipher
	switch cfg.SecretBackend {
	case "gcpkms":
		kmsClient, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
		if err != nil {
			slog.Error("failed to init KMS client", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := kmsClient.Close(); closeErr != nil {
				slog.Error("failed to close KMS client", "error", closeErr)
			}
		}()
		cipher = kmsClient
	default:
		cipher = secretbox.NewCipher(cfg.MasterSecret)
	}

	// 配送トランスポート選択
	tr, err := transport.New(cfg)
	if err != nil {
		slog.Error("failed to init transport", "error", err)
		os.Exit(1)
	}

	// DI
	domainRepo := repository.NewDomainRepository(db)
	apiKeyRepo := repository.NewAPIKeyRepository(db)
	attemptRepo := repository.NewSendAttemptRepository(db)

	policy := usecase.RetryPolicy{
		Backoff:          cfg.Backoff,
		MaxRetries:       cfg.MaxRetries,
		TransportTimeout: cfg.TransportTimeout,
		BatchSize:        cfg.RetryBatchSize,
	}

	domainService := usecase.NewDomainService(domainRepo, cipher)
	credentialService := usecase.NewCredentialService(apiKeyRepo, domainRepo)
	deliveryService := usecase.NewDeliveryService(attemptRepo, domainRepo, cipher, tr, middleware.NewAuditLogger(), policy)
	logService := usecase.NewSendLogService(attemptRepo, domainRepo)

	handlers := &handler.Handlers{
		Send:    handler.NewSendHandler(deliveryService),
		Domains: handler.NewDomainHandler(domainService),
		APIKeys: handler.NewAPIKeyHandler(credentialService),
		Logs:    handler.NewLogsHandler(logService),
	}
	router := handler.NewRouter(handlers, credentialService, cfg)

	// 再試行ワーカー起動
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	retryWorker := worker.NewRetryWorker(deliveryService, cfg.RetryInterval)
	go retryWorker.Run(workerCtx)

	// サーバー起動
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		stopWorker()
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port, "transport", cfg.Transport)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
