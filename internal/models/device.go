package models

import (
	"context"
	"fmt"
	"strings"

	"procodus.dev/weather-db/internal/access"
	"procodus.dev/weather-db/internal/docstore"
)

// DeviceModel reads and writes the devices collection.
type DeviceModel struct {
	base
}

// FindByDeviceID looks a device up by its external identifier.
func (m *DeviceModel) FindByDeviceID(ctx context.Context, caller access.Caller, deviceID string) (Device, error) {
	const op = "find_by_device_id"

	if err := m.authorize(caller, access.Read, access.Device(deviceID)); err != nil {
		return Device{}, m.done(op, caller.String(), err, "device_id", deviceID)
	}

	device, err := findOne[Device](ctx, &m.base, docstore.Filter{"device_id": deviceID})
	return device, m.done(op, caller.String(), err, "device_id", deviceID)
}

// Insert registers a device unless its device id is taken.
// The sensor type is stored lower-cased.
func (m *DeviceModel) Insert(ctx context.Context, caller access.Caller, deviceID, desc, sensorType, manufacturer string) (Device, error) {
	const op = "insert"

	if err := m.authorize(caller, access.Write, access.Device(deviceID)); err != nil {
		return Device{}, m.done(op, caller.String(), err, "device_id", deviceID)
	}

	device := Device{
		DeviceID:     deviceID,
		Desc:         desc,
		Type:         strings.ToLower(strings.TrimSpace(sensorType)),
		Manufacturer: manufacturer,
	}
	if err := m.check(device); err != nil {
		return Device{}, m.done(op, caller.String(), err, "device_id", deviceID)
	}

	stored, err := insertUnique(ctx, &m.base,
		docstore.Filter{"device_id": deviceID},
		device,
		fmt.Sprintf("Device id %s already exists", deviceID),
	)
	return stored, m.done(op, caller.String(), err, "device_id", deviceID)
}
