package generator_test

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/weather-db/pkg/generator"
)

var _ = Describe("Generator", func() {
	start := time.Date(2020, 12, 1, 0, 0, 0, 0, time.UTC)

	Describe("Hourly", func() {
		It("should produce 24 readings per day at half past each hour", func() {
			samples, ok := generator.New(1).Hourly("temperature", start, 5)
			Expect(ok).To(BeTrue())
			Expect(samples).To(HaveLen(120))

			for i, s := range samples {
				want := start.AddDate(0, 0, i/24).Add(time.Duration(i%24)*time.Hour + 30*time.Minute)
				Expect(s.Timestamp).To(Equal(want))
			}
		})

		It("should accept the sensor type in any case", func() {
			_, ok := generator.New(1).Hourly("Humidity", start, 1)
			Expect(ok).To(BeTrue())
		})

		It("should refuse unknown sensor types", func() {
			samples, ok := generator.New(1).Hourly("wind", start, 1)
			Expect(ok).To(BeFalse())
			Expect(samples).To(BeNil())
		})

		It("should be reproducible for a given seed", func() {
			a, _ := generator.New(42).Hourly("humidity", start, 2)
			b, _ := generator.New(42).Hourly("humidity", start, 2)
			Expect(a).To(Equal(b))
		})

		It("should start at midnight of the first day", func() {
			samples, _ := generator.New(1).Hourly("temperature", start.Add(17*time.Hour), 1)
			Expect(samples[0].Timestamp).To(Equal(start.Add(30 * time.Minute)))
		})
	})

	Describe("Normal", func() {
		DescribeTable("should follow the sensor distribution",
			func(sensor string) {
				d := generator.Distributions[sensor]
				g := generator.New(7)

				const n = 20000
				var sum, sq float64
				for range n {
					v := g.Normal(d)
					sum += v
					sq += v * v
				}
				mean := sum / n
				stddev := math.Sqrt(sq/n - mean*mean)

				Expect(mean).To(BeNumerically("~", d.Mean, 0.1))
				Expect(stddev).To(BeNumerically("~", d.StdDev, 0.1))
			},
			Entry("temperature", "temperature"),
			Entry("humidity", "humidity"),
		)
	})

	Describe("Users", func() {
		It("should generate unique lower-case usernames with emails", func() {
			users, err := generator.New(3).Users(25)
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(HaveLen(25))

			seen := map[string]bool{}
			for _, u := range users {
				Expect(u.Username).NotTo(BeEmpty())
				Expect(u.Username).To(MatchRegexp(`^[^A-Z]+$`))
				Expect(u.Email).To(ContainSubstring("@"))
				Expect(seen).NotTo(HaveKey(u.Username))
				seen[u.Username] = true
			}
		})
	})

	Describe("Devices", func() {
		It("should number devices and pick a known sensor type", func() {
			devices, ids, err := generator.New(3).Devices("DT", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"DT001", "DT002", "DT003"}))
			for _, d := range devices {
				Expect(d.Type).To(BeElementOf("temperature", "humidity"))
				Expect(d.Manufacturer).NotTo(BeEmpty())
			}
		})
	})
})
