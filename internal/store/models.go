package store

import "time"

type Sensor struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"uniqueIndex" json:"name"`
	Location   string    `json:"location"`
	SensorType string    `json:"sensor_type"`
	CreatedAt  time.Time `json:"created_at"`
}

type Reading struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SensorID  uint      `gorm:"index:idx_sensor_ts,priority:1" json:"sensor_id"`
	Timestamp time.Time `gorm:"index:idx_sensor_ts,priority:2" json:"timestamp"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
}

type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Username       string    `gorm:"uniqueIndex" json:"username"`
	Email          string    `gorm:"uniqueIndex" json:"email"`
	HashedPassword string    `json:"-"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}
