// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/TotallyFred/cloudwatcher/pkg/cloudwatcher"
)

var telemetryJSON bool

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Read one telemetry snapshot",
	Long: `Read every sensor once and print the calibrated values.

Sensors that are not installed (no anemometer, no integrated temperature/
humidity sensor) are reported as absent rather than failing the read.`,
	RunE: runTelemetry,
}

func init() {
	telemetryCmd.Flags().BoolVar(&telemetryJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(telemetryCmd)
}

// jsonReading is the JSON shape of one sensor value.
type jsonReading struct {
	Raw      int     `json:"raw"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit"`
	Validity string  `json:"validity"`
}

func runTelemetry(cmd *cobra.Command, args []string) error {
	session, err := openSession()
	if err != nil {
		return err
	}
	defer session.Close()

	snapshot, err := session.Snapshot()
	if err != nil {
		return err
	}

	if telemetryJSON {
		out := make(map[string]jsonReading, len(snapshot))
		for name, r := range snapshot {
			out[name] = jsonReading{Raw: r.Raw, Value: r.Value, Unit: r.Unit, Validity: r.Validity.String()}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := snapshot[name]
		if r.Validity == cloudwatcher.SensorAbsent {
			fmt.Printf("%-20s absent\n", name)
			continue
		}
		flag := ""
		if r.Validity == cloudwatcher.OutOfRange {
			flag = " (out of range)"
		}
		fmt.Printf("%-20s %8.2f %s%s\n", name, r.Value, r.Unit, flag)
	}
	return nil
}
