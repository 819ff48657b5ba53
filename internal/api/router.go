package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/practice-scheduling/internal/scheduling"
)

// SchedulingService is the part of *scheduling.Service the HTTP layer uses.
type SchedulingService interface {
	PreviewRecurrence(ctx context.Context, ownerID uuid.UUID, in scheduling.PreviewInput) ([]scheduling.PreviewSlot, error)
	CreateSession(ctx context.Context, ownerID uuid.UUID, in scheduling.CreateSessionInput) (*scheduling.SessionBatch, error)
	GetSession(ctx context.Context, ownerID, id uuid.UUID) (*scheduling.SessionDetail, error)
	ListSessions(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]scheduling.SessionDetail, error)
	RescheduleSession(ctx context.Context, ownerID, id uuid.UUID, in scheduling.RescheduleInput) (*scheduling.SessionDetail, error)
	ChangeSessionStatus(ctx context.Context, ownerID, id uuid.UUID, status scheduling.SessionStatus) (*scheduling.SessionDetail, error)
	DeleteSession(ctx context.Context, ownerID, id uuid.UUID) error
	DeleteRecurrenceGroup(ctx context.Context, ownerID, groupID uuid.UUID, mode scheduling.DeleteMode, anchorID *uuid.UUID) (int, error)

	CreatePackage(ctx context.Context, ownerID uuid.UUID, in scheduling.CreatePackageInput) (*scheduling.PackageDetail, error)
	GetPackage(ctx context.Context, ownerID, packageID uuid.UUID) (*scheduling.PackageDetail, error)
	AddPackageSessions(ctx context.Context, ownerID, packageID uuid.UUID, slots []scheduling.PackageSessionInput) (int, error)
	CancelPackage(ctx context.Context, ownerID, packageID uuid.UUID) (*scheduling.PackageDetail, error)
	DeletePackage(ctx context.Context, ownerID, packageID uuid.UUID) error
	PackageStats(ctx context.Context, ownerID, packageID uuid.UUID) (*scheduling.PackageStats, error)

	UpdatePayment(ctx context.Context, ownerID, paymentID uuid.UUID, upd scheduling.PaymentUpdate) (*scheduling.Payment, error)
}

type RouterConfig struct {
	Service        SchedulingService
	Postgres       Pinger
	Redis          *redis.Client
	Logger         *slog.Logger
	RequestTimeout time.Duration
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := &handlers{svc: cfg.Service, log: log}

	r.Group(func(r chi.Router) {
		r.Use(OwnerMiddleware)
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.createSession)
			r.Get("/", h.listSessions)
			r.Post("/preview", h.previewRecurrence)
			r.Get("/{id}", h.getSession)
			r.Delete("/{id}", h.deleteSession)
			r.Patch("/{id}/schedule", h.rescheduleSession)
			r.Patch("/{id}/status", h.changeSessionStatus)
		})

		r.Delete("/recurrence-groups/{groupID}", h.deleteRecurrenceGroup)

		r.Route("/packages", func(r chi.Router) {
			r.Post("/", h.createPackage)
			r.Get("/{id}", h.getPackage)
			r.Delete("/{id}", h.deletePackage)
			r.Get("/{id}/stats", h.packageStats)
			r.Post("/{id}/sessions", h.addPackageSessions)
			r.Post("/{id}/cancel", h.cancelPackage)
		})

		r.Patch("/payments/{id}", h.updatePayment)
	})

	return r
}
