package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/weather-db/internal/docstore"
	"procodus.dev/weather-db/internal/models"
	"procodus.dev/weather-db/internal/report"
	"procodus.dev/weather-db/pkg/metrics"
	"procodus.dev/weather-db/pkg/mq"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Aggregate readings into daily reports",
}

var reportRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute and store the daily reports once",
	Long: `Compute min, max and average reading values per device and write them to
daily_reports. With --scope daily (default) every report covers one UTC day
of the window; with --scope all-time each device gets one aggregate over all
its readings, stamped on every day of the window.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		summary, err := runReport(ctx, a.logger, a.store, a.models)
		if err != nil {
			return err
		}
		return printJSON(cmd, summary.Reports)
	},
}

var reportGetCmd = &cobra.Command{
	Use:   "get DEVICE_ID DATE",
	Short: "Find the report of a device for a day",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := parseTimestamp(args[1])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		r, err := a.models.Reports.FindByDeviceIDAndDate(ctx, args[0], date)
		return result(cmd, r, err)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportRunCmd, reportGetCmd)

	reportCmd.PersistentFlags().String("start", report.DefaultWindow.Start.Format("2006-01-02"), "first day of the report window")
	reportCmd.PersistentFlags().Int("days", report.DefaultWindow.Days, "number of days in the report window")
	reportCmd.PersistentFlags().String("scope", string(report.ScopeDaily), "report scope (daily, all-time)")
	reportCmd.PersistentFlags().String("rabbitmq-url", "", "publish every report to RabbitMQ at this URL")
	reportCmd.PersistentFlags().String("queue-name", "daily-reports", "RabbitMQ queue for reports")

	_ = viper.BindPFlag("report.start", reportCmd.PersistentFlags().Lookup("start"))
	_ = viper.BindPFlag("report.days", reportCmd.PersistentFlags().Lookup("days"))
	_ = viper.BindPFlag("report.scope", reportCmd.PersistentFlags().Lookup("scope"))
	_ = viper.BindPFlag("report.rabbitmq.url", reportCmd.PersistentFlags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("report.rabbitmq.queue", reportCmd.PersistentFlags().Lookup("queue-name"))
}

func runReport(ctx context.Context, l *slog.Logger, store docstore.Store, m *models.Models) (*report.Summary, error) {
	window, err := windowFromConfig()
	if err != nil {
		return nil, err
	}
	scope, err := report.ParseScope(viper.GetString("report.scope"))
	if err != nil {
		return nil, err
	}

	var notifier report.Notifier
	if url := viper.GetString("report.rabbitmq.url"); url != "" {
		client, err := mq.New(&mq.Config{
			Logger:  l,
			Metrics: metrics.NewMQMetrics(nil),
			URL:     url,
			Queue:   viper.GetString("report.rabbitmq.queue"),
			Durable: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize publisher: %w", err)
		}
		defer func() { _ = client.Close() }()

		if notifier, err = report.NewQueueNotifier(client); err != nil {
			return nil, err
		}
	}

	aggregator, err := report.NewAggregator(&report.Config{
		Logger:   l,
		Store:    store,
		Reports:  m.Reports,
		Notifier: notifier,
		Metrics:  metrics.NewReportMetrics(nil),
		Scope:    scope,
		Window:   window,
	})
	if err != nil {
		return nil, err
	}
	return aggregator.Run(ctx)
}
