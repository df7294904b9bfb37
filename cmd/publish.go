// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"

	"github.com/TotallyFred/cloudwatcher/pkg/cloudwatcher"
)

var (
	publishBroker   string
	publishTopic    string
	publishInterval time.Duration
	publishUsername string
	publishClientID string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish telemetry snapshots to an MQTT broker",
	Long: `Poll the unit and publish each snapshot as a JSON object to an MQTT
topic. Absent sensors are published as null so subscribers can tell a
missing sensor from a zero reading.

The broker password, if needed, is taken from the CLOUDWATCHER_MQTT_PASSWORD
environment variable.`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishBroker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	publishCmd.Flags().StringVar(&publishTopic, "topic", "/CloudWatcher/Home", "MQTT topic")
	publishCmd.Flags().DurationVar(&publishInterval, "interval", time.Second, "Publish interval")
	publishCmd.Flags().StringVar(&publishUsername, "broker-username", "", "MQTT username")
	publishCmd.Flags().StringVar(&publishClientID, "client-id", "", "MQTT client ID (default cloudwatcher-<pid>)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	log := newLogger()

	session, err := openSession()
	if err != nil {
		return err
	}
	defer session.Close()

	clientID := publishClientID
	if clientID == "" {
		clientID = fmt.Sprintf("cloudwatcher-%d", os.Getpid())
	}

	mqttOpts := mqtt.NewClientOptions().
		AddBroker(publishBroker).
		SetClientID(clientID).
		SetConnectTimeout(15 * time.Second).
		SetAutoReconnect(true)
	if publishUsername != "" {
		mqttOpts.SetUsername(publishUsername)
		mqttOpts.SetPassword(os.Getenv("CLOUDWATCHER_MQTT_PASSWORD"))
	}
	mqttOpts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", publishBroker).Msg("connected to MQTT broker")
	}
	mqttOpts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	}

	client := mqtt.NewClient(mqttOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to broker %s: %w", publishBroker, token.Error())
	}
	defer client.Disconnect(250)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(publishInterval)
	defer ticker.Stop()

	for {
		readings, err := session.Snapshot()
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}

		payload := make(map[string]*float64, len(readings))
		for name, r := range readings {
			if r.Validity == cloudwatcher.SensorAbsent {
				payload[name] = nil
				continue
			}
			v := r.Value
			payload[name] = &v
		}
		msg, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}

		token := client.Publish(publishTopic, 0, false, msg)
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", publishTopic).Msg("publish failed")
		} else {
			log.Info().Str("topic", publishTopic).RawJSON("snapshot", msg).Msg("published")
		}

		select {
		case <-stop:
			log.Info().Msg("stopping publisher")
			return nil
		case <-ticker.C:
		}
	}
}
