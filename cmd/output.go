package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"procodus.dev/weather-db/internal/models"
)

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// result prints the document of a model call or turns its error into the
// message the caller should see.
func result[T any](cmd *cobra.Command, doc T, err error) error {
	switch outcome := models.Classify(err); outcome {
	case models.OutcomeFound:
		return printJSON(cmd, doc)
	case models.OutcomeNotFound:
		return fmt.Errorf("not found")
	case models.OutcomeDenied, models.OutcomeConflict:
		return fmt.Errorf("%s: %s", outcome, models.Reason(err))
	default:
		return err
	}
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateTime, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q (want RFC3339, %q or %q)", s, time.DateTime, time.DateOnly)
}
