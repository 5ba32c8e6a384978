package generator

import (
	"math"
	"strings"
	"time"
)

// Distribution is a normal distribution of sensor values.
type Distribution struct {
	Mean   float64
	StdDev float64
}

// Distributions per sensor type.
var Distributions = map[string]Distribution{
	"temperature": {Mean: 24, StdDev: 2.2},
	"humidity":    {Mean: 45, StdDev: 3},
}

// Sample is a single generated reading.
type Sample struct {
	Timestamp time.Time
	Value     int
}

// Normal draws from N(mean, stddev) using the Box-Muller transform.
func (g *Generator) Normal(d Distribution) float64 {
	u1 := 1 - g.faker.Float64() // (0, 1]
	u2 := g.faker.Float64()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return d.Mean + z*d.StdDev
}

// Hourly returns one sample per hour, at half past, for each of days starting at start.
// Values are truncated toward zero. ok is false for an unknown sensor type.
func (g *Generator) Hourly(sensorType string, start time.Time, days int) (samples []Sample, ok bool) {
	d, ok := Distributions[strings.ToLower(sensorType)]
	if !ok {
		return nil, false
	}

	y, m, day := start.UTC().Date()
	midnight := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)

	samples = make([]Sample, 0, days*24)
	for i := range days {
		for hour := range 24 {
			ts := midnight.AddDate(0, 0, i).Add(time.Duration(hour)*time.Hour + 30*time.Minute)
			samples = append(samples, Sample{
				Timestamp: ts,
				Value:     int(g.Normal(d)),
			})
		}
	}
	return samples, true
}
