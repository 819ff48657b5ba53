package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/practice-scheduling/internal/api"
	"github.com/hackgods/practice-scheduling/internal/config"
	"github.com/hackgods/practice-scheduling/internal/db"
	"github.com/hackgods/practice-scheduling/internal/logger"
)

type SimConfig struct {
	APIBaseURL     string
	Duration       time.Duration
	Workers        int
	BookingRatio   float64
	RecurringRatio float64
	ReadRatio      float64
	OwnerLimit     int
	SlotDays       int
	PostgresDSN    string
}

// DataPool holds the owners under test and their patients.
type DataPool struct {
	Owners   []uuid.UUID
	Patients map[uuid.UUID][]uuid.UUID
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, worst time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	n := len(latencies)
	return sum / time.Duration(n), latencies[n*50/100], latencies[min(n*95/100, n-1)], latencies[n-1]
}

type Metrics struct {
	Single    OperationMetrics
	Recurring OperationMetrics
	List      OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     *slog.Logger
	// base is the first candidate slot; every booking lands on the hour
	// within SlotDays of it so that workers collide often.
	base time.Time
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	log := logger.Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	log.Info("simulator starting",
		"duration", cfg.Duration, "workers", cfg.Workers,
		"booking", cfg.BookingRatio, "recurring", cfg.RecurringRatio, "read", cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Error("load data pool", "error", err)
		os.Exit(1)
	}
	log.Info("data loaded", "owners", len(dataPool.Owners))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
		base:   time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 1).Add(8 * time.Hour),
	}

	sim.Run()
	sim.PrintReport()

	overlaps, err := countOverlaps(context.Background(), pgPool, dataPool.Owners)
	if err != nil {
		log.Error("overlap check", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Overlapping session pairs in database: %d\n", overlaps)
	if overlaps > 0 {
		os.Exit(2)
	}
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, fmt.Errorf("failed to load base config: %w", err)
	}

	cfg := SimConfig{
		APIBaseURL:     getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:       getDuration("SIM_DURATION", 30*time.Second),
		Workers:        getInt("SIM_WORKERS", 10),
		BookingRatio:   getFloat("SIM_BOOKING_RATIO", 0.5),
		RecurringRatio: getFloat("SIM_RECURRING_RATIO", 0.2),
		ReadRatio:      getFloat("SIM_READ_RATIO", 0.3),
		OwnerLimit:     getInt("SIM_OWNER_LIMIT", 5),
		SlotDays:       getInt("SIM_SLOT_DAYS", 3),
		PostgresDSN:    baseCfg.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.RecurringRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.RecurringRatio /= total
		cfg.ReadRatio /= total
	}

	if cfg.Workers <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.SlotDays <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_SLOT_DAYS must be > 0")
	}
	return cfg, nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{Patients: map[uuid.UUID][]uuid.UUID{}}

	rows, err := pool.Query(ctx, `
		SELECT owner_id, id
		FROM patients
		WHERE owner_id IN (SELECT DISTINCT owner_id FROM patients ORDER BY owner_id LIMIT $1)
	`, cfg.OwnerLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ownerID, patientID uuid.UUID
		if err := rows.Scan(&ownerID, &patientID); err != nil {
			return nil, err
		}
		if _, seen := dataPool.Patients[ownerID]; !seen {
			dataPool.Owners = append(dataPool.Owners, ownerID)
		}
		dataPool.Patients[ownerID] = append(dataPool.Patients[ownerID], patientID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Owners) == 0 {
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info("starting simulation", "duration", s.config.Duration, "workers", s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		owner := s.pool.Owners[rng.Intn(len(s.pool.Owners))]
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng, owner, nil)
		case r < s.config.BookingRatio+s.config.RecurringRatio:
			s.doBooking(ctx, rng, owner, &api.RecurrenceRequest{Pattern: "WEEKLY", Occurrences: 2 + rng.Intn(6)})
		default:
			s.doList(ctx, owner)
		}
	}
}

// randomSlot picks an hour in the candidate window, offset by 0 or 30
// minutes so that half-overlapping requests happen too.
func (s *Simulator) randomSlot(rng *rand.Rand) time.Time {
	day := rng.Intn(s.config.SlotDays)
	hour := rng.Intn(10)
	offset := time.Duration(rng.Intn(2)*30) * time.Minute
	return s.base.AddDate(0, 0, day).Add(time.Duration(hour)*time.Hour + offset)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, owner uuid.UUID, rec *api.RecurrenceRequest) {
	patients := s.pool.Patients[owner]
	body, _ := json.Marshal(api.CreateSessionRequest{
		PatientID:       patients[rng.Intn(len(patients))].String(),
		StartTime:       s.randomSlot(rng),
		DurationMinutes: 50,
		Recurrence:      rec,
	})

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.OwnerHeader, owner.String())

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		resp.Body.Close()
		success = resp.StatusCode == http.StatusCreated
		conflict = resp.StatusCode == http.StatusConflict
	}

	if rec != nil {
		s.metrics.Recurring.Record(latency, success, conflict)
	} else {
		s.metrics.Single.Record(latency, success, conflict)
	}
}

func (s *Simulator) doList(ctx context.Context, owner uuid.UUID) {
	from := s.base.Format(time.RFC3339)
	to := s.base.AddDate(0, 0, s.config.SlotDays).Format(time.RFC3339)

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/sessions?from=%s&to=%s", s.config.APIBaseURL, from, to), nil)
	req.Header.Set(api.OwnerHeader, owner.String())

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}
	s.metrics.List.Record(latency, success, false)
}

// countOverlaps looks for pairs of live sessions of the same owner whose
// intervals intersect. Any hit means serialization failed.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool, owners []uuid.UUID) (int, error) {
	ids := make([]string, len(owners))
	for i, o := range owners {
		ids[i] = o.String()
	}

	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM sessions a
		JOIN sessions b
		  ON a.owner_id = b.owner_id
		 AND a.id < b.id
		 AND a.start_time < b.start_time + make_interval(mins => b.duration_minutes)
		 AND b.start_time < a.start_time + make_interval(mins => a.duration_minutes)
		WHERE a.owner_id = ANY($1::uuid[])
		  AND a.status <> 'CANCELLED'
		  AND b.status <> 'CANCELLED'
	`, ids).Scan(&n)
	return n, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Owners: %d\n", len(s.pool.Owners))
	fmt.Println()

	printOperationReport("Single booking", &s.metrics.Single)
	printOperationReport("Recurring booking", &s.metrics.Recurring)
	printOperationReport("List sessions", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, worst := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), worst.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
