package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/docslot/docslot/libs/config"
	"github.com/docslot/docslot/libs/db"
	"github.com/docslot/docslot/libs/httpx"
	"github.com/docslot/docslot/libs/kafkax"
	otelx "github.com/docslot/docslot/libs/otel"
	"github.com/docslot/docslot/libs/runtime"
	"github.com/docslot/docslot/services/analytics-service/internal/consumer"
	"github.com/docslot/docslot/services/analytics-service/internal/inbox"
	"github.com/docslot/docslot/services/analytics-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "analytics-service")
	port, err := config.Port("PORT", "8086")
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

	inboxRepo := inbox.NewRepository(pool)
	repo := storage.NewRepository(pool)

	handleBookingEvent := func(ctx context.Context, msg kafka.Message, kind string) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			ProviderID    string `json:"provider_id"`
			StartTime     string `json:"start_time"`
			CancelledAt   string `json:"cancelled_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid booking payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.ProviderID == "" || payload.StartTime == "" {
			logger.Error("missing booking fields")
			return nil
		}
		startTime, err := time.Parse(time.RFC3339, payload.StartTime)
		if err != nil {
			logger.Error("invalid start_time", "err", err)
			return nil
		}

		meta := kafkax.ExtractEventMeta(msg)

		bookedInc := 0
		cancelledInc := 0
		if kind == "booked" {
			bookedInc = 1
		} else {
			cancelledInc = 1
		}

		if err := repo.RecordBookingEvent(ctx, meta.EventID, meta.EventType, payload.ProviderID, payload.AppointmentID, startTime, bookedInc, cancelledInc); err != nil {
			logger.Error("failed to record booking metric", "err", err)
			return err
		}

		logger.Info("booking metric recorded", "appointment_id", payload.AppointmentID, "provider_id", payload.ProviderID, "event_type", meta.EventType)
		return nil
	}

	bookedConsumerCfg := consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "analytics-service"),
		Topic:   "booking.appointment.booked.v1",
	}
	bookedConsumer := consumer.New(logger, inboxRepo, bookedConsumerCfg, func(ctx context.Context, msg kafka.Message) error {
		return handleBookingEvent(ctx, msg, "booked")
	})
	go bookedConsumer.Run(ctx)

	cancelConsumerCfg := consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "analytics-service"),
		Topic:   "booking.appointment.cancelled.v1",
	}
	cancelConsumer := consumer.New(logger, inboxRepo, cancelConsumerCfg, func(ctx context.Context, msg kafka.Message) error {
		return handleBookingEvent(ctx, msg, "cancelled")
	})
	go cancelConsumer.Run(ctx)

	authAuditCfg := consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "analytics-service"),
		Topic:   "auth.audit.v1",
	}
	authAuditConsumer := consumer.New(logger, inboxRepo, authAuditCfg, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			EventType string          `json:"event_type"`
			ActorID   string          `json:"actor_id"`
			Metadata  json.RawMessage `json:"metadata"`
			CreatedAt string          `json:"created_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid auth audit payload", "err", err)
			return nil
		}
		if payload.EventType == "" || payload.CreatedAt == "" {
			logger.Error("missing auth audit fields")
			return nil
		}
		if _, err := time.Parse(time.RFC3339, payload.CreatedAt); err != nil {
			logger.Error("invalid auth audit created_at", "err", err)
			return nil
		}

		if err := repo.RecordSecurityAudit(ctx, payload.EventType, payload.ActorID, payload.Metadata, payload.CreatedAt); err != nil {
			logger.Error("failed to write security audit event", "err", err)
			return err
		}

		logger.Info("security audit recorded", "event_type", payload.EventType)
		return nil
	})
	go authAuditConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/analytics/daily", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
		if providerID == "" {
			http.Error(w, "provider_id is required", http.StatusBadRequest)
			return
		}
		now := time.Now().UTC()
		from := now.AddDate(0, 0, -30)
		to := now
		if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
			t, err := time.Parse("2006-01-02", raw)
			if err != nil {
				http.Error(w, "invalid from", http.StatusBadRequest)
				return
			}
			from = t
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
			t, err := time.Parse("2006-01-02", raw)
			if err != nil {
				http.Error(w, "invalid to", http.StatusBadRequest)
				return
			}
			to = t
		}
		if to.Before(from) {
			http.Error(w, "to must not be before from", http.StatusBadRequest)
			return
		}

		metrics, err := repo.DailyMetrics(r.Context(), providerID, from, to)
		if err != nil {
			http.Error(w, "failed to load metrics", http.StatusInternalServerError)
			return
		}
		if metrics == nil {
			metrics = []storage.DailyMetric{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(metrics)
	})
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "analytics")
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
