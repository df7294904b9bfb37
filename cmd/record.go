// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"

	"github.com/TotallyFred/cloudwatcher/pkg/cloudwatcher"
)

var (
	recordOutput   string
	recordInterval time.Duration
	recordCount    int
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record telemetry snapshots to a CBOR archive",
	Long: `Poll the unit at a fixed interval and append each snapshot to a file
as a CBOR-encoded record. Records are self-delimiting, so the archive can
be appended to across runs and decoded as a stream.`,
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "cloudwatcher.cbor", "Archive file to append to")
	recordCmd.Flags().DurationVar(&recordInterval, "interval", 10*time.Second, "Snapshot interval")
	recordCmd.Flags().IntVarP(&recordCount, "count", "n", 0, "Stop after this many snapshots (0 = run until interrupted)")
	rootCmd.AddCommand(recordCmd)
}

// archiveRecord is one row of the recorded stream. Absent sensors carry a
// nil value; the raw word is kept so recordings can be re-calibrated later.
type archiveRecord struct {
	Time     time.Time               `cbor:"time"`
	Readings map[string]archiveValue `cbor:"readings"`
}

type archiveValue struct {
	Raw      int      `cbor:"raw"`
	Value    *float64 `cbor:"value"`
	Unit     string   `cbor:"unit,omitempty"`
	Validity string   `cbor:"validity"`
}

func runRecord(cmd *cobra.Command, args []string) error {
	log := newLogger()

	session, err := openSession()
	if err != nil {
		return err
	}
	defer session.Close()

	f, err := os.OpenFile(recordOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", recordOutput, err)
	}
	defer f.Close()
	enc := cbor.NewEncoder(f)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(recordInterval)
	defer ticker.Stop()

	recorded := 0
	for {
		readings, err := session.Snapshot()
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}

		rec := archiveRecord{
			Time:     time.Now().UTC(),
			Readings: make(map[string]archiveValue, len(readings)),
		}
		for name, r := range readings {
			av := archiveValue{
				Raw:      r.Raw,
				Unit:     r.Unit,
				Validity: r.Validity.String(),
			}
			if r.Validity != cloudwatcher.SensorAbsent {
				v := r.Value
				av.Value = &v
			}
			rec.Readings[name] = av
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("append record: %w", err)
		}
		recorded++
		log.Info().Int("recorded", recorded).Str("archive", recordOutput).Msg("snapshot recorded")

		if recordCount > 0 && recorded >= recordCount {
			return nil
		}
		select {
		case <-stop:
			log.Info().Msg("stopping recorder")
			return nil
		case <-ticker.C:
		}
	}
}
