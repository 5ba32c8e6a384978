package models

import "time"

// Collection names.
const (
	UsersCollection        = "users"
	DevicesCollection      = "devices"
	WeatherDataCollection  = "weather_data"
	DailyReportsCollection = "daily_reports"
)

// Sensor types a device may report.
const (
	SensorTemperature = "temperature"
	SensorHumidity    = "humidity"
)

// User is an account. Users are created once by an admin and never updated.
type User struct {
	ID       string `bson:"_id,omitempty" json:"_id,omitempty"`
	Username string `bson:"username" json:"username" validate:"required"`
	Email    string `bson:"email" json:"email" validate:"required"`
	Role     string `bson:"role" json:"role" validate:"required,oneof=admin default"`
}

// Device is a sensor identified by its external device id.
type Device struct {
	ID           string `bson:"_id,omitempty" json:"_id,omitempty"`
	DeviceID     string `bson:"device_id" json:"device_id" validate:"required"`
	Desc         string `bson:"desc" json:"desc"`
	Type         string `bson:"type" json:"type" validate:"required,oneof=temperature humidity"`
	Manufacturer string `bson:"manufacturer" json:"manufacturer"`
}

// WeatherReading is a single integer sample. (DeviceID, Timestamp) is unique.
type WeatherReading struct {
	Timestamp time.Time `bson:"timestamp" json:"timestamp" validate:"required"`
	ID        string    `bson:"_id,omitempty" json:"_id,omitempty"`
	DeviceID  string    `bson:"device_id" json:"device_id" validate:"required"`
	Value     int       `bson:"value" json:"value"`
}

// DailyReport holds the statistics of one device for one day.
type DailyReport struct {
	Date     time.Time `bson:"date" json:"date" validate:"required"`
	ID       string    `bson:"_id,omitempty" json:"_id,omitempty"`
	DeviceID string    `bson:"device_id" json:"device_id" validate:"required"`
	AvgValue float64   `bson:"avg_value" json:"avg_value"`
	MinValue float64   `bson:"min_value" json:"min_value"`
	MaxValue float64   `bson:"max_value" json:"max_value"`
}

// UniqueIndexes lists the business keys of each collection, for backends
// that enforce uniqueness with indexes.
func UniqueIndexes() map[string][]string {
	return map[string][]string{
		UsersCollection:       {"username"},
		DevicesCollection:     {"device_id"},
		WeatherDataCollection: {"device_id", "timestamp"},
	}
}

// normalizeTime keeps timestamps in UTC at the millisecond precision every backend can store.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
