package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docslot/docslot/libs/config"
	"github.com/docslot/docslot/libs/db"
	"github.com/docslot/docslot/libs/httpx"
	otelx "github.com/docslot/docslot/libs/otel"
	"github.com/docslot/docslot/libs/runtime"
	"github.com/docslot/docslot/services/records-service/internal/blob"
	"github.com/docslot/docslot/services/records-service/internal/handlers"
	"github.com/docslot/docslot/services/records-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "records-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	bucket, err := config.RequiredString("RECORDS_BUCKET")
	if err != nil {
		panic(err)
	}
	blobs, err := blob.Open(ctx, blob.Config{
		Bucket:   bucket,
		Endpoint: config.String("S3_ENDPOINT", ""),
		Expiry:   15 * time.Minute,
	})
	if err != nil {
		logger.Error("blob store init failed", "err", err)
		panic(err)
	}

	repo := storage.NewRepository(pool)
	recordsHandler := handlers.NewRecordsHandler(repo, blobs, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
	)
	mux.HandleFunc("/api/v1/records/upload-request", recordsHandler.UploadRequest)
	mux.HandleFunc("/api/v1/records/confirm", recordsHandler.Confirm)
	mux.HandleFunc("/api/v1/records/download", recordsHandler.Download)
	mux.HandleFunc("/api/v1/records", recordsHandler.Documents)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "records")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
