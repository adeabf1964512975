package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	ErrDuplicateSensorName = errors.New("sensor name already registered")
	ErrDuplicateUsername   = errors.New("username already registered")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrSensorNotFound      = errors.New("sensor not found")
	ErrUserNotFound        = errors.New("user not found")
)

type Repo struct {
	db *gorm.DB
}

func OpenPostgres(user, password, dbName, host, port, sslMode string) (*gorm.DB, error) {
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC", host, user, password, dbName, port, sslMode)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
}

func New(db *gorm.DB) (*Repo, error) {
	if err := db.AutoMigrate(&Sensor{}, &Reading{}, &User{}); err != nil {
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) CreateSensor(ctx context.Context, s *Sensor) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Sensor{}).Where("name = ?", s.Name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateSensorName
		}
		if err := tx.Create(s).Error; err != nil {
			// Concurrent registration of the same name loses here.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateSensorName
			}
			return err
		}
		return nil
	})
}

func (r *Repo) ListSensors(ctx context.Context) ([]Sensor, error) {
	var sensors []Sensor
	err := r.db.WithContext(ctx).Order("id").Find(&sensors).Error
	return sensors, err
}

func (r *Repo) CreateReading(ctx context.Context, rd *Reading) error {
	if rd.Timestamp.IsZero() {
		rd.Timestamp = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Sensor{}).Where("id = ?", rd.SensorID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrSensorNotFound
		}
		return tx.Create(rd).Error
	})
}

func (r *Repo) ListReadings(ctx context.Context, sensorID *uint, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	q := r.db.WithContext(ctx).Order("timestamp DESC, id DESC").Limit(limit)
	if sensorID != nil {
		q = q.Where("sensor_id = ?", *sensorID)
	}
	var readings []Reading
	err := q.Find(&readings).Error
	return readings, err
}

func (r *Repo) CreateUser(ctx context.Context, u *User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&User{}).Where("username = ?", u.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateUsername
		}
		if err := tx.Model(&User{}).Where("email = ?", u.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateEmail
		}
		if err := tx.Create(u).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateUsername
			}
			return err
		}
		return nil
	})
}

func (r *Repo) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Stats is a single-row aggregate over one sensor's readings. Average, Min
// and Max are nil when Count is zero.
type Stats struct {
	Count   int64    `json:"count"`
	Average *float64 `json:"average"`
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`
}

func (r *Repo) ReadingStats(ctx context.Context, sensorID uint, since time.Time) (Stats, error) {
	var row struct {
		Count int64
		Avg   *float64
		Min   *float64
		Max   *float64
	}
	err := r.db.WithContext(ctx).Model(&Reading{}).
		Select("COUNT(*) AS count, AVG(value) AS avg, MIN(value) AS min, MAX(value) AS max").
		Where("sensor_id = ? AND timestamp >= ?", sensorID, since).
		Scan(&row).Error
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Count: row.Count, Min: row.Min, Max: row.Max}
	if row.Avg != nil {
		avg := math.Round(*row.Avg)
		stats.Average = &avg
	}
	return stats, nil
}

type HourlyBucket struct {
	Hour    time.Time `json:"hour"`
	Average float64   `json:"average"`
}

// HourlyAverages groups readings into UTC hour buckets. Truncation happens
// in Go rather than in SQL so the same query runs against Postgres and the
// sqlite test driver, and so the window and the buckets share one clock.
// Hours with no readings produce no bucket.
func (r *Repo) HourlyAverages(ctx context.Context, sensorID uint, since time.Time) ([]HourlyBucket, error) {
	var rows []struct {
		Timestamp time.Time
		Value     float64
	}
	err := r.db.WithContext(ctx).Model(&Reading{}).
		Select("timestamp, value").
		Where("sensor_id = ? AND timestamp >= ?", sensorID, since).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	type acc struct {
		sum float64
		n   int
	}
	byHour := make(map[time.Time]*acc)
	for _, row := range rows {
		hour := row.Timestamp.UTC().Truncate(time.Hour)
		a := byHour[hour]
		if a == nil {
			a = &acc{}
			byHour[hour] = a
		}
		a.sum += row.Value
		a.n++
	}

	buckets := make([]HourlyBucket, 0, len(byHour))
	for hour, a := range byHour {
		buckets = append(buckets, HourlyBucket{Hour: hour, Average: math.Round(a.sum / float64(a.n))})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Hour.Before(buckets[j].Hour) })
	return buckets, nil
}
