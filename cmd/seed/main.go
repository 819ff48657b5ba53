package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/practice-scheduling/internal/db"
	"github.com/hackgods/practice-scheduling/internal/logger"
)

func main() {
	log := logger.Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	log.Info("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Error("POSTGRES_DSN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	owners := make([]uuid.UUID, envInt("SEED_OWNERS", 10))
	for i := range owners {
		owners[i] = uuid.New()
	}

	patients, err := seedPatients(context.Background(), log, pool, owners, envInt("SEED_PATIENTS_PER_OWNER", 40))
	if err != nil {
		log.Error("seed patients", "error", err)
		os.Exit(1)
	}
	if err := seedPricingPlans(context.Background(), log, pool, patients); err != nil {
		log.Error("seed pricing plans", "error", err)
		os.Exit(1)
	}

	for _, o := range owners {
		log.Info("seeded owner", "owner_id", o)
	}
	log.Info("seed complete", "owners", len(owners), "patients", len(patients))
}

func seedPatients(ctx context.Context, log *slog.Logger, pool *pgxpool.Pool, owners []uuid.UUID, perOwner int) ([]uuid.UUID, error) {
	log.Info("seeding patients", "owners", len(owners), "per_owner", perOwner)

	var ids []uuid.UUID
	for n, ownerID := range owners {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := 0; i < perOwner; i++ {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, owner_id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, ownerID, gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		log.Debug("patients seeded", "owners_done", n+1, "owners_total", len(owners))
	}

	log.Info("patients seeded", "count", len(ids))
	return ids, nil
}

// seedPricingPlans gives roughly two thirds of patients a per-session rate
// between 80.00 and 250.00 in steps of 5.00.
func seedPricingPlans(ctx context.Context, log *slog.Logger, pool *pgxpool.Pool, patients []uuid.UUID) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	count := 0
	for _, patientID := range patients {
		if gofakeit.Number(0, 2) == 0 {
			continue
		}
		price := int64(gofakeit.Number(16, 50)) * 500
		_, err := tx.Exec(ctx, `
			INSERT INTO pricing_plans (id, patient_id, type, session_price_cents, is_active, created_at)
			VALUES ($1, $2, 'SESSION', $3, true, now())
		`, uuid.New(), patientID, price)
		if err != nil {
			return err
		}
		count++
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info("pricing plans seeded", "count", count)
	return nil
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
