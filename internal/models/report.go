package models

import (
	"context"
	"fmt"
	"time"

	"procodus.dev/weather-db/internal/docstore"
)

// ReportModel reads and writes the daily_reports collection. Reports are
// public within the system, so reads take no caller. Insert is the only
// write path into the collection.
type ReportModel struct {
	base
}

// FindByDeviceIDAndDate returns the first report of a device for the day containing date.
func (m *ReportModel) FindByDeviceIDAndDate(ctx context.Context, deviceID string, date time.Time) (DailyReport, error) {
	const op = "find_by_device_id_and_date"
	day := docstore.UTCDay(date)

	report, err := findOne[DailyReport](ctx, &m.base, docstore.Filter{"device_id": deviceID, "date": day})
	return report, m.done(op, "", err, "device_id", deviceID, "date", day)
}

// Insert appends a report. Reports are not unique: re-running the
// aggregation for the same day appends another document.
func (m *ReportModel) Insert(ctx context.Context, report DailyReport) (DailyReport, error) {
	const op = "insert"
	report.ID = ""
	report.Date = docstore.UTCDay(report.Date)

	if err := m.check(report); err != nil {
		return DailyReport{}, m.done(op, "", err, "device_id", report.DeviceID)
	}

	id, err := m.store.InsertOne(ctx, m.collection, report)
	if err != nil {
		err = fmt.Errorf("failed to insert %s: %w", m.entity, err)
		return DailyReport{}, m.done(op, "", err, "device_id", report.DeviceID)
	}

	report.ID = id
	return report, m.done(op, "", nil, "device_id", report.DeviceID, "date", report.Date)
}
