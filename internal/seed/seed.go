// Package seed bootstraps a store with users, devices and synthetic hourly
// readings.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"procodus.dev/weather-db/internal/access"
	"procodus.dev/weather-db/internal/models"
	"procodus.dev/weather-db/pkg/generator"
)

// Data is what a seed run inserts.
type Data struct {
	Users   []UserRecord
	Devices []DeviceRecord
}

// Result counts what a run inserted and what already existed.
type Result struct {
	Users    int
	Devices  int
	Readings int
	Skipped  int
}

// Config holds the configuration for the Seeder.
type Config struct {
	Logger    *slog.Logger
	Models    *models.Models
	Generator *generator.Generator
	// Start is the first day of generated readings.
	Start time.Time
	// Days is how many days of hourly readings each device gets.
	Days int
}

// Seeder inserts seed data through the models as an admin.
type Seeder struct {
	logger    *slog.Logger
	models    *models.Models
	generator *generator.Generator
	start     time.Time
	days      int
}

// New creates a Seeder.
func New(cfg *Config) (*Seeder, error) {
	if cfg == nil {
		return nil, errors.New("seed config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Models == nil {
		return nil, errors.New("models cannot be nil")
	}
	if cfg.Generator == nil {
		return nil, errors.New("generator cannot be nil")
	}
	if cfg.Days < 0 {
		return nil, errors.New("days cannot be negative")
	}
	return &Seeder{
		logger:    cfg.Logger,
		models:    cfg.Models,
		generator: cfg.Generator,
		start:     cfg.Start,
		days:      cfg.Days,
	}, nil
}

// Run inserts users, then devices, then readings for every device.
// Existing documents are counted as skipped, so running twice is harmless.
func (s *Seeder) Run(ctx context.Context, data Data) (Result, error) {
	var res Result
	admin := access.Admin()

	for _, u := range data.Users {
		_, err := s.models.Users.Insert(ctx, admin, u.Username, u.Email, u.Role)
		if err := s.tally(err, &res.Users, &res.Skipped); err != nil {
			return res, fmt.Errorf("failed to seed user %q: %w", u.Username, err)
		}
	}

	for _, d := range data.Devices {
		_, err := s.models.Devices.Insert(ctx, admin, d.DeviceID, d.Desc, d.Type, d.Manufacturer)
		if err := s.tally(err, &res.Devices, &res.Skipped); err != nil {
			return res, fmt.Errorf("failed to seed device %q: %w", d.DeviceID, err)
		}
	}

	for _, d := range data.Devices {
		samples, ok := s.generator.Hourly(d.Type, s.start, s.days)
		if !ok {
			s.logger.Warn("no value distribution for sensor type", "device_id", d.DeviceID, "type", d.Type)
			continue
		}
		for _, sample := range samples {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			_, err := s.models.Readings.Insert(ctx, admin, d.DeviceID, sample.Value, sample.Timestamp)
			if err := s.tally(err, &res.Readings, &res.Skipped); err != nil {
				return res, fmt.Errorf("failed to seed reading for %q: %w", d.DeviceID, err)
			}
		}
	}

	s.logger.Info("seed completed",
		"users", res.Users,
		"devices", res.Devices,
		"readings", res.Readings,
		"skipped", res.Skipped,
	)
	return res, nil
}

// FakeData builds demo data with generated users and devices.
func (s *Seeder) FakeData(users, devices int) (Data, error) {
	var data Data

	fakeUsers, err := s.generator.Users(users)
	if err != nil {
		return data, err
	}
	for _, u := range fakeUsers {
		data.Users = append(data.Users, UserRecord{
			Username: u.Username,
			Email:    u.Email,
			Role:     string(access.RoleDefault),
		})
	}

	fakeDevices, ids, err := s.generator.Devices("DT", devices)
	if err != nil {
		return data, err
	}
	for i, d := range fakeDevices {
		data.Devices = append(data.Devices, DeviceRecord{
			DeviceID:     ids[i],
			Desc:         d.Desc,
			Type:         d.Type,
			Manufacturer: d.Manufacturer,
		})
	}
	return data, nil
}

func (s *Seeder) tally(err error, inserted, skipped *int) error {
	switch models.Classify(err) {
	case models.OutcomeFound:
		*inserted++
		return nil
	case models.OutcomeConflict:
		*skipped++
		return nil
	default:
		return err
	}
}
