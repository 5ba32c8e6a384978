package models

import (
	"context"
	"fmt"
	"time"

	"procodus.dev/weather-db/internal/access"
	"procodus.dev/weather-db/internal/docstore"
)

// ReadingModel reads and writes the weather_data collection.
// Readings are unique per (device id, timestamp).
type ReadingModel struct {
	base
}

// FindByDeviceIDAndTimestamp returns the reading a device recorded at ts.
func (m *ReadingModel) FindByDeviceIDAndTimestamp(ctx context.Context, caller access.Caller, deviceID string, ts time.Time) (WeatherReading, error) {
	const op = "find_by_device_id_and_timestamp"
	ts = normalizeTime(ts)

	if err := m.authorize(caller, access.Read, access.Device(deviceID)); err != nil {
		return WeatherReading{}, m.done(op, caller.String(), err, "device_id", deviceID, "timestamp", ts)
	}

	reading, err := findOne[WeatherReading](ctx, &m.base, readingKey(deviceID, ts))
	return reading, m.done(op, caller.String(), err, "device_id", deviceID, "timestamp", ts)
}

// Insert records a reading unless the device already has one at ts.
func (m *ReadingModel) Insert(ctx context.Context, caller access.Caller, deviceID string, value int, ts time.Time) (WeatherReading, error) {
	const op = "insert"
	ts = normalizeTime(ts)

	if err := m.authorize(caller, access.Write, access.Device(deviceID)); err != nil {
		return WeatherReading{}, m.done(op, caller.String(), err, "device_id", deviceID, "timestamp", ts)
	}

	reading := WeatherReading{
		DeviceID:  deviceID,
		Value:     value,
		Timestamp: ts,
	}
	if err := m.check(reading); err != nil {
		return WeatherReading{}, m.done(op, caller.String(), err, "device_id", deviceID)
	}

	stored, err := insertUnique(ctx, &m.base,
		readingKey(deviceID, ts),
		reading,
		fmt.Sprintf("Data for timestamp %s for device id %s already exists", ts.Format(time.DateTime), deviceID),
	)
	return stored, m.done(op, caller.String(), err, "device_id", deviceID, "timestamp", ts)
}

func readingKey(deviceID string, ts time.Time) docstore.Filter {
	return docstore.Filter{"device_id": deviceID, "timestamp": ts}
}
