package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/weather-db/internal/producer"
	"procodus.dev/weather-db/internal/seed"
	"procodus.dev/weather-db/pkg/generator"
	"procodus.dev/weather-db/pkg/metrics"
)

var produceCmd = &cobra.Command{
	Use:   "produce",
	Short: "Publish synthetic readings to RabbitMQ",
	Long: `Publish one reading per device to RabbitMQ on every tick. Reading
timestamps follow a simulated clock that starts at half past midnight of
--start and moves one hour per tick, so a short run covers days of data.

Devices come from a header-less devices CSV or, without one, are generated.
Run "schedule --reading-queue" to store the published readings.`,
	RunE: runProduce,
}

func init() {
	rootCmd.AddCommand(produceCmd)

	produceCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	produceCmd.Flags().String("queue-name", "weather-readings", "RabbitMQ queue for readings")
	produceCmd.Flags().String("devices", "", "devices CSV file")
	produceCmd.Flags().Int("fake-devices", 3, "number of generated devices when no devices file is given")
	produceCmd.Flags().Uint64("seed", 0, "random seed for generated data (0 picks one)")
	produceCmd.Flags().String("start", "", "first simulated day (defaults to report.start)")
	produceCmd.Flags().Duration("interval", time.Second, "wall-clock time between ticks")
	produceCmd.Flags().Int("ticks", 0, "stop after that many ticks (0 runs until interrupted)")

	_ = viper.BindPFlag("produce.rabbitmq.url", produceCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("produce.rabbitmq.queue", produceCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("produce.devices", produceCmd.Flags().Lookup("devices"))
	_ = viper.BindPFlag("produce.fake_devices", produceCmd.Flags().Lookup("fake-devices"))
	_ = viper.BindPFlag("produce.random_seed", produceCmd.Flags().Lookup("seed"))
	_ = viper.BindPFlag("produce.start", produceCmd.Flags().Lookup("start"))
	_ = viper.BindPFlag("produce.interval", produceCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("produce.ticks", produceCmd.Flags().Lookup("ticks"))
}

func runProduce(cmd *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting producer service")

	start := viper.GetString("produce.start")
	if start == "" {
		start = viper.GetString("report.start")
	}
	day, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return fmt.Errorf("invalid start day: %w", err)
	}

	devices, err := producerDevices()
	if err != nil {
		return err
	}

	config := &producer.ServerConfig{
		Logger:      logger,
		RabbitMQURL: viper.GetString("produce.rabbitmq.url"),
		QueueName:   viper.GetString("produce.rabbitmq.queue"),
		Devices:     devices,
		Seed:        viper.GetUint64("produce.random_seed"),
		Start:       day.Add(30 * time.Minute),
		Interval:    viper.GetDuration("produce.interval"),
		Ticks:       viper.GetInt("produce.ticks"),
		Metrics:     metrics.NewProducerMetrics(nil),
		MQMetrics:   metrics.NewMQMetrics(nil),
	}

	server, err := producer.NewServer(config)
	if err != nil {
		logger.Error("failed to create producer server", "error", err)
		return err
	}

	logger.Info("producer server configuration",
		"queue", config.QueueName,
		"devices", len(config.Devices),
		"start", config.Start,
		"interval", config.Interval,
		"ticks", config.Ticks,
	)

	if err := server.Run(cmd.Context()); err != nil {
		logger.Error("producer server error", "error", err)
		return err
	}
	return nil
}

func producerDevices() ([]producer.Device, error) {
	if path := viper.GetString("produce.devices"); path != "" {
		records, err := seed.LoadDevicesFile(path)
		if err != nil {
			return nil, err
		}
		devices := make([]producer.Device, 0, len(records))
		for _, r := range records {
			devices = append(devices, producer.Device{ID: r.DeviceID, Type: r.Type})
		}
		return devices, nil
	}

	fake, ids, err := generator.New(viper.GetUint64("produce.random_seed")).Devices("DT", viper.GetInt("produce.fake_devices"))
	if err != nil {
		return nil, err
	}
	devices := make([]producer.Device, 0, len(fake))
	for i, d := range fake {
		devices = append(devices, producer.Device{ID: ids[i], Type: d.Type})
	}
	return devices, nil
}
