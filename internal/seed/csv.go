package seed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// UserRecord is one row of users.csv: username,email,role.
type UserRecord struct {
	Username string
	Email    string
	Role     string
}

// DeviceRecord is one row of devices.csv: device_id,desc,type,manufacturer.
type DeviceRecord struct {
	DeviceID     string
	Desc         string
	Type         string
	Manufacturer string
}

// LoadUsers parses a header-less users CSV. Blank lines are skipped.
func LoadUsers(r io.Reader) ([]UserRecord, error) {
	rows, err := readRows(r, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}

	users := make([]UserRecord, 0, len(rows))
	for _, row := range rows {
		users = append(users, UserRecord{
			Username: row[0],
			Email:    row[1],
			Role:     row[2],
		})
	}
	return users, nil
}

// LoadDevices parses a header-less devices CSV. Blank lines are skipped.
func LoadDevices(r io.Reader) ([]DeviceRecord, error) {
	rows, err := readRows(r, 4)
	if err != nil {
		return nil, fmt.Errorf("failed to read devices: %w", err)
	}

	devices := make([]DeviceRecord, 0, len(rows))
	for _, row := range rows {
		devices = append(devices, DeviceRecord{
			DeviceID:     row[0],
			Desc:         row[1],
			Type:         row[2],
			Manufacturer: row[3],
		})
	}
	return devices, nil
}

// LoadUsersFile opens path and parses it with LoadUsers.
func LoadUsersFile(path string) ([]UserRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadUsers(f)
}

// LoadDevicesFile opens path and parses it with LoadDevices.
func LoadDevicesFile(path string) ([]DeviceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadDevices(f)
}

func readRows(r io.Reader, fields int) ([][]string, error) {
	if r == nil {
		return nil, errors.New("reader cannot be nil")
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = fields
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		for j := range row {
			row[j] = strings.TrimSpace(row[j])
		}
		if row[0] == "" {
			return nil, fmt.Errorf("record %d: first field cannot be empty", i+1)
		}
	}
	return rows, nil
}
