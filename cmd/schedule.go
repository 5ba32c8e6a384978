package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/weather-db/internal/access"
	"procodus.dev/weather-db/internal/backend"
	"procodus.dev/weather-db/internal/report"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the report job periodically",
	Long: `Run the daily report job on an interval or cron expression until
interrupted, optionally publishing every report to RabbitMQ, and serve
Prometheus metrics on /metrics.

With --reading-queue, readings published by "produce" are stored as they
arrive, written with the permissions of --ingest-role.`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().Duration("every", 0, "run interval, e.g. 1h")
	scheduleCmd.Flags().String("cron", "0 1 * * *", "cron expression in UTC, used when --every is not set")
	scheduleCmd.Flags().String("metrics-addr", ":9100", "metrics listen address, empty to disable")
	scheduleCmd.Flags().String("reading-queue", "", "store readings consumed from this RabbitMQ queue")
	scheduleCmd.Flags().String("ingest-role", "admin", "role consumed readings are written as")
	scheduleCmd.Flags().AddFlagSet(reportCmd.PersistentFlags())

	_ = viper.BindPFlag("schedule.every", scheduleCmd.Flags().Lookup("every"))
	_ = viper.BindPFlag("schedule.cron", scheduleCmd.Flags().Lookup("cron"))
	_ = viper.BindPFlag("metrics.addr", scheduleCmd.Flags().Lookup("metrics-addr"))
	_ = viper.BindPFlag("ingest.queue", scheduleCmd.Flags().Lookup("reading-queue"))
	_ = viper.BindPFlag("ingest.role", scheduleCmd.Flags().Lookup("ingest-role"))
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting schedule service")

	window, err := windowFromConfig()
	if err != nil {
		return err
	}
	scope, err := report.ParseScope(viper.GetString("report.scope"))
	if err != nil {
		return err
	}

	ingestCaller, err := access.NewCaller(viper.GetString("ingest.role"))
	if err != nil && viper.GetString("ingest.queue") != "" {
		return fmt.Errorf("invalid ingest role: %w", err)
	}

	config := &backend.ServerConfig{
		Logger:      logger,
		Store:       storeConfig(logger),
		Policy:      policyFromConfig(),
		Window:      window,
		Scope:       scope,
		Every:       viper.GetDuration("schedule.every"),
		RabbitMQURL: viper.GetString("report.rabbitmq.url"),
		QueueName:   viper.GetString("report.rabbitmq.queue"),
		MetricsAddr: viper.GetString("metrics.addr"),

		ReadingQueue: viper.GetString("ingest.queue"),
		IngestCaller: ingestCaller,
	}
	if config.Every <= 0 {
		config.Cron = viper.GetString("schedule.cron")
	}

	server, err := backend.NewServer(config)
	if err != nil {
		logger.Error("failed to create schedule server", "error", err)
		return err
	}

	logger.Info("schedule server configuration",
		"store", config.Store.Driver,
		"scope", config.Scope,
		"every", config.Every,
		"cron", config.Cron,
		"rabbitmq_enabled", config.RabbitMQURL != "",
		"reading_queue", config.ReadingQueue,
		"metrics_addr", config.MetricsAddr,
	)

	if err := server.Run(cmd.Context()); err != nil {
		logger.Error("schedule server error", "error", err)
		return err
	}

	logger.Info("schedule server stopped")
	return nil
}
