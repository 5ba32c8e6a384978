// Package generator produces synthetic users, devices and sensor readings.
package generator

import (
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
)

// FakeUser is a demo account.
type FakeUser struct {
	Username string `fake:"{username}"`
	Email    string `fake:"{email}"`
}

// FakeDevice is a demo sensor.
type FakeDevice struct {
	Desc         string `fake:"{adjective} {noun} sensor"`
	Type         string `fake:"{randomstring:[temperature,humidity]}"`
	Manufacturer string `fake:"{company}"`
}

// Generator wraps a seeded gofakeit source. The same seed yields the same data.
type Generator struct {
	faker *gofakeit.Faker
}

// New creates a Generator. A zero seed picks a random one.
func New(seed uint64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Users returns n users with lower-cased, unique usernames.
func (g *Generator) Users(n int) ([]FakeUser, error) {
	users := make([]FakeUser, 0, n)
	seen := make(map[string]bool, n)
	for len(users) < n {
		var u FakeUser
		if err := g.faker.Struct(&u); err != nil {
			return nil, fmt.Errorf("failed to generate user: %w", err)
		}
		u.Username = strings.ToLower(u.Username)
		if seen[u.Username] {
			continue
		}
		seen[u.Username] = true
		users = append(users, u)
	}
	return users, nil
}

// Devices returns n devices numbered from prefix+001.
func (g *Generator) Devices(prefix string, n int) ([]FakeDevice, []string, error) {
	devices := make([]FakeDevice, 0, n)
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		var d FakeDevice
		if err := g.faker.Struct(&d); err != nil {
			return nil, nil, fmt.Errorf("failed to generate device: %w", err)
		}
		devices = append(devices, d)
		ids = append(ids, fmt.Sprintf("%s%03d", prefix, i))
	}
	return devices, ids, nil
}
