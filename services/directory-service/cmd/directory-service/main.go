package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docslot/docslot/libs/config"
	"github.com/docslot/docslot/libs/db"
	"github.com/docslot/docslot/libs/httpx"
	"github.com/docslot/docslot/libs/kafkax"
	otelx "github.com/docslot/docslot/libs/otel"
	"github.com/docslot/docslot/libs/runtime"
	"github.com/docslot/docslot/services/directory-service/internal/consumer"
	"github.com/docslot/docslot/services/directory-service/internal/handlers"
	"github.com/docslot/docslot/services/directory-service/internal/inbox"
	"github.com/docslot/docslot/services/directory-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "directory-service")
	port, err := config.Port("PORT", "8082")
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

	repo := storage.NewRepository(pool)
	httpHandler := handlers.New(repo)

	// Registrations from the identity service feed the directory tables;
	// there is no write path for profiles other than the provider edit.
	inboxRepo := inbox.NewRepository(pool)
	registrationTopic := config.String("KAFKA_CONSUME_TOPIC", "identity.user.registered.v1")
	if registrationTopic != "" {
		consumerCfg := consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "directory-service"),
			Topic:   registrationTopic,
		}
		eventConsumer := consumer.New(logger, inboxRepo, consumerCfg, func(ctx context.Context, msg kafka.Message) error {
			var payload struct {
				UserID         string `json:"user_id"`
				Role           string `json:"role"`
				Name           string `json:"name"`
				PatientID      string `json:"patient_id"`
				ProviderID     string `json:"provider_id"`
				Speciality     string `json:"speciality"`
				Experience     string `json:"experience"`
				AppointmentFee string `json:"appointment_fee"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			switch payload.Role {
			case "patient":
				if payload.PatientID == "" || payload.UserID == "" {
					logger.Error("missing patient event fields", "topic", msg.Topic)
					return nil
				}
				return repo.UpsertPatient(ctx, storage.Patient{
					ID:     payload.PatientID,
					UserID: payload.UserID,
					Name:   payload.Name,
				})
			case "provider":
				if payload.ProviderID == "" || payload.UserID == "" {
					logger.Error("missing provider event fields", "topic", msg.Topic)
					return nil
				}
				return repo.UpsertProvider(ctx, storage.Provider{
					ID:             payload.ProviderID,
					UserID:         payload.UserID,
					Name:           payload.Name,
					Speciality:     payload.Speciality,
					Experience:     payload.Experience,
					AppointmentFee: payload.AppointmentFee,
				})
			default:
				logger.Warn("unknown role in registration event", "role", payload.Role)
				return nil
			}
		})
		go eventConsumer.Run(ctx)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/public/providers", httpHandler.Providers)
	mux.HandleFunc("/api/v1/directory/profile", httpHandler.Profile)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "directory")
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

	if err := startGrpcServer(ctx, logger, repo); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
