package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
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
	"github.com/rs/zerolog"

	"github.com/dentalcare/slot-booking/internal/availability"
	"github.com/dentalcare/slot-booking/internal/config"
	"github.com/dentalcare/slot-booking/internal/db"
	"github.com/dentalcare/slot-booking/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	StormRounds  int
	StormSize    int
	BookingRatio float64
	HoldRatio    float64
	ReadRatio    float64
	PatientLimit int
	SearchDays   int
	PostgresDSN  string
	Location     *time.Location
}

type DataPool struct {
	Dentists []uuid.UUID
	Patients []uuid.UUID

	mu           sync.RWMutex
	appointments map[uuid.UUID]uuid.UUID // appointment -> patient
}

func (dp *DataPool) AddAppointment(id, patientID uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments[id] = patientID
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, uuid.Nil, false
	}
	n := rng.Intn(len(dp.appointments))
	for id, patient := range dp.appointments {
		if n == 0 {
			return id, patient, true
		}
		n--
	}
	return uuid.Nil, uuid.Nil, false
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

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Storm         OperationMetrics
	Booking       OperationMetrics
	Hold          OperationMetrics
	Cancel        OperationMetrics
	Slots         OperationMetrics
	ListByPatient OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger

	// Rounds in which more than one booking of the same slot succeeded.
	doubleBookings int64
}

func main() {
	cfg, baseCfg := loadConfig()
	logger := logging.New(baseCfg.LogLevel, baseCfg.Env).With().Str("service", "simulate").Logger()

	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("storm_rounds", cfg.StormRounds).
		Int("storm_size", cfg.StormSize).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("dentists", len(dataPool.Dentists)).Int("patients", len(dataPool.Patients)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.RunStorm(context.Background())
	sim.Run()
	sim.PrintReport()

	if n := atomic.LoadInt64(&sim.doubleBookings); n > 0 {
		logger.Error().Int64("rounds", n).Msg("double booking detected")
		os.Exit(1)
	}
}

func loadConfig() (SimConfig, config.Config) {
	baseCfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("info", "prod")
		bootLogger.Fatal().Err(err).Msg("failed to load base config")
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		StormRounds:  getInt("SIM_STORM_ROUNDS", 5),
		StormSize:    getInt("SIM_STORM_SIZE", 50),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.4),
		HoldRatio:    getFloat("SIM_HOLD_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.4),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		SearchDays:   getInt("SIM_SEARCH_DAYS", 14),
		PostgresDSN:  baseCfg.PostgresDSN,
		Location:     baseCfg.ClinicLocation,
	}

	total := cfg.BookingRatio + cfg.HoldRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.HoldRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg, baseCfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.SearchDays <= 0 {
		return fmt.Errorf("SIM_SEARCH_DAYS must be > 0")
	}
	if cfg.StormSize < 2 {
		return fmt.Errorf("SIM_STORM_SIZE must be >= 2")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{appointments: make(map[uuid.UUID]uuid.UUID)}

	var err error
	dataPool.Dentists, err = loadIDs(ctx, pool, `SELECT id FROM dentists`)
	if err != nil {
		return nil, fmt.Errorf("load dentists: %w", err)
	}
	dataPool.Patients, err = loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	if len(dataPool.Dentists) == 0 {
		return nil, fmt.Errorf("no dentists loaded, run the seeder first")
	}
	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run the seeder first")
	}
	return dataPool, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RunStorm fires StormSize simultaneous bookings at one free slot per round
// and counts how many of them the server accepted.
func (s *Simulator) RunStorm(ctx context.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for round := 0; round < s.config.StormRounds; round++ {
		dentistID := s.pool.Dentists[rng.Intn(len(s.pool.Dentists))]
		slot, ok := s.findFreeSlot(ctx, rng, dentistID)
		if !ok {
			s.logger.Warn().Str("dentist_id", dentistID.String()).Msg("no free slot found for storm round")
			continue
		}

		var (
			wg      sync.WaitGroup
			start   = make(chan struct{})
			created int64
		)
		for i := 0; i < s.config.StormSize; i++ {
			patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if s.book(ctx, &s.metrics.Storm, dentistID, patientID, slot) {
					atomic.AddInt64(&created, 1)
				}
			}()
		}
		close(start)
		wg.Wait()

		level := zerolog.InfoLevel
		if created > 1 {
			atomic.AddInt64(&s.doubleBookings, 1)
			level = zerolog.ErrorLevel
		}
		s.logger.WithLevel(level).
			Int("round", round+1).
			Str("dentist_id", dentistID.String()).
			Str("slot", slot.Date+" "+slot.Time).
			Int64("created", created).
			Msg("storm round finished")
	}
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting mixed load")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("mixed load complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		dentistID := s.pool.Dentists[rng.Intn(len(s.pool.Dentists))]
		patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			if slot, ok := s.findFreeSlot(ctx, rng, dentistID); ok {
				s.book(ctx, &s.metrics.Booking, dentistID, patientID, slot)
			}
		case r < s.config.BookingRatio+s.config.HoldRatio:
			if slot, ok := s.findFreeSlot(ctx, rng, dentistID); ok {
				s.holdAndRelease(ctx, dentistID, patientID, slot)
			}
		default:
			if rng.Intn(2) == 0 {
				s.cancelRandom(ctx, rng)
			} else {
				s.listByPatient(ctx, patientID)
			}
		}
	}
}

// findFreeSlot asks the API for the dentist's open slots, starting at a
// random day within the search window.
func (s *Simulator) findFreeSlot(ctx context.Context, rng *rand.Rand, dentistID uuid.UUID) (availability.TimeSlot, bool) {
	today := time.Now().In(s.config.Location)
	offset := rng.Intn(s.config.SearchDays)

	for i := 0; i < s.config.SearchDays; i++ {
		day := today.AddDate(0, 0, (offset+i)%s.config.SearchDays)
		url := fmt.Sprintf("%s/dentists/%s/slots?date=%s", s.config.APIBaseURL, dentistID, day.Format("2006-01-02"))

		var body struct {
			Slots []availability.TimeSlot `json:"slots"`
		}
		start := time.Now()
		status, err := s.do(ctx, http.MethodGet, url, uuid.Nil, nil, &body)
		s.metrics.Slots.Record(time.Since(start), err == nil && status == http.StatusOK, false)
		if err != nil || status != http.StatusOK {
			continue
		}
		if len(body.Slots) > 0 {
			return body.Slots[rng.Intn(len(body.Slots))], true
		}
	}
	return availability.TimeSlot{}, false
}

func (s *Simulator) book(ctx context.Context, om *OperationMetrics, dentistID, patientID uuid.UUID, slot availability.TimeSlot) bool {
	payload := map[string]string{
		"patientName":   "Sim Patient",
		"patientEmail":  "sim+" + patientID.String()[:8] + "@example.com",
		"patientPhone":  "+1 555 0100",
		"dentistId":     dentistID.String(),
		"date":          slot.Date,
		"time":          slot.Time,
		"paymentMethod": "cash",
		"reason":        "load test",
	}

	var resp struct {
		AppointmentID uuid.UUID `json:"appointmentId"`
	}
	start := time.Now()
	status, err := s.do(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", patientID, payload, &resp)
	ok := err == nil && status == http.StatusCreated
	om.Record(time.Since(start), ok, status == http.StatusConflict)

	if ok && resp.AppointmentID != uuid.Nil {
		s.pool.AddAppointment(resp.AppointmentID, patientID)
	}
	return ok
}

func (s *Simulator) holdAndRelease(ctx context.Context, dentistID, patientID uuid.UUID, slot availability.TimeSlot) {
	payload := map[string]string{
		"dentistId": dentistID.String(),
		"patientId": patientID.String(),
		"slotTime":  slot.Start.Format(time.RFC3339),
	}

	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	start := time.Now()
	status, err := s.do(ctx, http.MethodPost, s.config.APIBaseURL+"/reservations", patientID, payload, &resp)
	ok := err == nil && status == http.StatusCreated
	s.metrics.Hold.Record(time.Since(start), ok, status == http.StatusConflict)

	if ok && resp.ID != uuid.Nil {
		_, _ = s.do(ctx, http.MethodDelete, s.config.APIBaseURL+"/reservations/"+resp.ID.String(), patientID, nil, nil)
	}
}

func (s *Simulator) cancelRandom(ctx context.Context, rng *rand.Rand) {
	apptID, patientID, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.do(ctx, http.MethodDelete, s.config.APIBaseURL+"/appointments/"+apptID.String(), patientID, nil, nil)
	// A 400 here is the cancellation window or an already cancelled booking.
	s.metrics.Cancel.Record(time.Since(start), err == nil && status == http.StatusOK, status == http.StatusBadRequest)
}

func (s *Simulator) listByPatient(ctx context.Context, patientID uuid.UUID) {
	start := time.Now()
	url := fmt.Sprintf("%s/patients/%s/appointments?limit=20&offset=0", s.config.APIBaseURL, patientID)
	status, err := s.do(ctx, http.MethodGet, url, patientID, nil, nil)
	s.metrics.ListByPatient.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) do(ctx context.Context, method, url string, actor uuid.UUID, payload, out any) (int, error) {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if actor != uuid.Nil {
		req.Header.Set("X-User-ID", actor.String())
		req.Header.Set("X-User-Role", "patient")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Storm rounds: %d x %d callers, double bookings: %d\n",
		s.config.StormRounds, s.config.StormSize, atomic.LoadInt64(&s.doubleBookings))
	fmt.Println()

	printOperationReport("Same-slot storm", &s.metrics.Storm)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Hold + release", &s.metrics.Hold)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Slot lookup", &s.metrics.Slots)
	printOperationReport("List by patient", &s.metrics.ListByPatient)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
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

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
