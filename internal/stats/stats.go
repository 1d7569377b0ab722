// Package stats reports delivery outcomes to InfluxDB, writing
// line-protocol to a gzipped backup file when the server is
// unreachable.
package stats

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/studykit/relay/internal/config"
	"github.com/studykit/relay/pkg/core"
)

// Manager handles the InfluxDB connection and delivery-stat writes.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger

	cfg config.StatsConfig
}

// NewManager creates a stats manager from the given settings.
func NewManager(log zerolog.Logger, cfg config.StatsConfig) *Manager {
	return &Manager{
		Logger: log,
		cfg:    cfg,
	}
}

// Connect establishes the InfluxDB connection. When the server does
// not answer the ping, points are diverted to the gzip backup file.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return fmt.Errorf("stats reporting is disabled")
	}

	m.Client = influxdb2.NewClientWithOptions(
		m.cfg.URL,
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(100).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		if m.BackupWriter == nil {
			m.Logger.Info().Str("backupPath", m.cfg.BackupPath).
				Msg("Failed to reach InfluxDB, writing stats to backup file")

			file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %v", err)
			}
			m.BackupWriter = gzip.NewWriter(file)
		}
		return nil
	}

	m.IsValid = true
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)

	errorsCh := m.Writer.Errors()
	go func() {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Msg("Error sending stats to InfluxDB")
		}
	}()

	m.Logger.Info().Msg("InfluxDB stats client initialized")
	return nil
}

// RecordDelivery writes one point per completed (or failed)
// submission.
func (m *Manager) RecordDelivery(experimentName string, method core.Mode, success bool, trialCount int) error {
	point := influxdb2_write.NewPointWithMeasurement("trial_delivery").
		AddTag("experiment", experimentName).
		AddTag("method", string(method)).
		AddField("success", success).
		AddField("trial_count", trialCount).
		SetTime(time.Now())

	return m.writePoint(point)
}

func (m *Manager) writePoint(point *influxdb2_write.Point) error {
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}

	if m.BackupWriter == nil {
		return fmt.Errorf("stats client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol)); err != nil {
		return fmt.Errorf("error writing to stats backup file: %s", err)
	}
	return nil
}

// Close flushes pending writes and releases the client.
func (m *Manager) Close() {
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	if m.BackupWriter != nil {
		_ = m.BackupWriter.Close()
	}
}
