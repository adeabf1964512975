package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestRepo(t *testing.T) *Repo {
	t.Helper()
	// Use a unique in-memory DB per test to avoid cross-test contamination.
	dsn := "file:store_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo, err := New(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func mustCreateSensor(t *testing.T, repo *Repo, name string) *Sensor {
	t.Helper()
	s := &Sensor{Name: name, Location: "river mouth", SensorType: "multiprobe"}
	if err := repo.CreateSensor(context.Background(), s); err != nil {
		t.Fatalf("create sensor: %v", err)
	}
	return s
}

func TestCreateSensorAssignsIDAndListsBack(t *testing.T) {
	repo := openTestRepo(t)
	s := mustCreateSensor(t, repo, "river-1")
	if s.ID == 0 {
		t.Fatalf("expected assigned id")
	}
	if s.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}

	sensors, err := repo.ListSensors(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sensors) != 1 || sensors[0].ID != s.ID || sensors[0].Name != "river-1" {
		t.Fatalf("unexpected sensors: %+v", sensors)
	}
}

func TestCreateSensorRejectsDuplicateName(t *testing.T) {
	repo := openTestRepo(t)
	mustCreateSensor(t, repo, "river-1")

	err := repo.CreateSensor(context.Background(), &Sensor{Name: "river-1"})
	if !errors.Is(err, ErrDuplicateSensorName) {
		t.Fatalf("expected ErrDuplicateSensorName, got %v", err)
	}
}

func TestCreateReadingUnknownSensorPersistsNothing(t *testing.T) {
	repo := openTestRepo(t)

	err := repo.CreateReading(context.Background(), &Reading{SensorID: 999, Value: 7.2, Unit: "pH"})
	if !errors.Is(err, ErrSensorNotFound) {
		t.Fatalf("expected ErrSensorNotFound, got %v", err)
	}

	readings, err := repo.ListReadings(context.Background(), nil, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(readings) != 0 {
		t.Fatalf("expected 0 readings, got %d", len(readings))
	}
}

func TestListReadingsNewestFirstWithFilterAndLimit(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	s1 := mustCreateSensor(t, repo, "river-1")
	s2 := mustCreateSensor(t, repo, "river-2")
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := repo.CreateReading(ctx, &Reading{SensorID: s1.ID, Timestamp: base.Add(time.Duration(i) * time.Minute), Value: float64(i), Unit: "C"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := repo.CreateReading(ctx, &Reading{SensorID: s2.ID, Timestamp: base, Value: 9, Unit: "NTU"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	readings, err := repo.ListReadings(ctx, &s1.ID, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(readings))
	}
	if readings[0].Value != 2 || readings[1].Value != 1 {
		t.Fatalf("expected newest first, got %+v", readings)
	}
	for _, rd := range readings {
		if rd.SensorID != s1.ID {
			t.Fatalf("filter leaked reading for sensor %d", rd.SensorID)
		}
	}
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	u := &User{Username: "alice", Email: "alice@example.com", HashedPassword: "x", IsActive: true}
	if err := repo.CreateUser(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := repo.CreateUser(ctx, &User{Username: "alice", Email: "other@example.com", HashedPassword: "x"})
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
	err = repo.CreateUser(ctx, &User{Username: "bob", Email: "alice@example.com", HashedPassword: "x"})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	// Username is checked before email when both collide.
	err = repo.CreateUser(ctx, &User{Username: "alice", Email: "alice@example.com", HashedPassword: "x"})
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestFindUserByUsernameNotFound(t *testing.T) {
	repo := openTestRepo(t)
	_, err := repo.FindUserByUsername(context.Background(), "ghost")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestReadingStatsEmptyWindow(t *testing.T) {
	repo := openTestRepo(t)
	s := mustCreateSensor(t, repo, "river-1")

	stats, err := repo.ReadingStats(context.Background(), s.ID, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 0 {
		t.Fatalf("expected count 0, got %d", stats.Count)
	}
	if stats.Average != nil || stats.Min != nil || stats.Max != nil {
		t.Fatalf("expected nil aggregates, got %+v", stats)
	}
}

func TestReadingStatsRoundsAverage(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	s := mustCreateSensor(t, repo, "river-1")
	now := time.Now().UTC()

	for _, v := range []float64{7.1, 7.4, 8.3} {
		if err := repo.CreateReading(ctx, &Reading{SensorID: s.ID, Timestamp: now.Add(-time.Minute), Value: v, Unit: "pH"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	// A reading outside the window must not count.
	if err := repo.CreateReading(ctx, &Reading{SensorID: s.ID, Timestamp: now.Add(-48 * time.Hour), Value: 100, Unit: "pH"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	stats, err := repo.ReadingStats(ctx, s.ID, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 3 {
		t.Fatalf("expected count 3, got %d", stats.Count)
	}
	// mean(7.1, 7.4, 8.3) = 7.6 -> rounds to 8
	if stats.Average == nil || *stats.Average != 8 {
		t.Fatalf("expected rounded average 8, got %v", stats.Average)
	}
	if stats.Min == nil || *stats.Min != 7.1 {
		t.Fatalf("expected min 7.1, got %v", stats.Min)
	}
	if stats.Max == nil || *stats.Max != 8.3 {
		t.Fatalf("expected max 8.3, got %v", stats.Max)
	}
}

func TestHourlyAveragesSparseAscending(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	s := mustCreateSensor(t, repo, "river-1")
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// Two readings at 10:xx, nothing at 11:xx, one at 12:xx.
	inserts := []Reading{
		{SensorID: s.ID, Timestamp: base.Add(5 * time.Minute), Value: 20, Unit: "C"},
		{SensorID: s.ID, Timestamp: base.Add(40 * time.Minute), Value: 23, Unit: "C"},
		{SensorID: s.ID, Timestamp: base.Add(2*time.Hour + 10*time.Minute), Value: 25, Unit: "C"},
	}
	for i := range inserts {
		if err := repo.CreateReading(ctx, &inserts[i]); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	buckets, err := repo.HourlyAverages(ctx, s.ID, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("hourly: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets (sparse), got %d: %+v", len(buckets), buckets)
	}
	if !buckets[0].Hour.Equal(base) || !buckets[1].Hour.Equal(base.Add(2*time.Hour)) {
		t.Fatalf("unexpected bucket hours: %+v", buckets)
	}
	if !buckets[0].Hour.Before(buckets[1].Hour) {
		t.Fatalf("buckets not ascending: %+v", buckets)
	}
	// mean(20, 23) = 21.5 -> rounds to 22
	if buckets[0].Average != 22 {
		t.Fatalf("expected rounded average 22, got %v", buckets[0].Average)
	}
	if buckets[1].Average != 25 {
		t.Fatalf("expected average 25, got %v", buckets[1].Average)
	}
}
