package influxdb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dicomiot/dhome-core/internal/infrastructure/config"
	"github.com/dicomiot/dhome-core/internal/infrastructure/influxdb"
)

func testConfig() config.TelemetryConfig {
	return config.TelemetryConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "dhome-dev-token",
		Org:           "dicomiot",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// skipIfNoInfluxDB skips the test when no local InfluxDB is running.
func skipIfNoInfluxDB(t *testing.T) *influxdb.Client {
	t.Helper()

	client, err := influxdb.Connect(testConfig())
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	return client
}

func TestConnectDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := influxdb.Connect(cfg)
	if err == nil {
		t.Fatal("Connect() expected error for unreachable server")
	}
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteChannelStatus(t *testing.T) {
	client := skipIfNoInfluxDB(t)
	defer client.Close()

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect()")
	}

	client.WriteChannelStatus("0x00124b0001dd4b5601", 28, "temperature", 21.5)
	client.WriteChannelStatus("0x00124b0001dd4b5601", 28, "humidity", 63)
	client.WriteLinkQuality("0x00124b0001dd4b5601", 87, 95)
	client.Flush()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheckAfterClose(t *testing.T) {
	client := skipIfNoInfluxDB(t)
	client.Close()

	err := client.HealthCheck(context.Background())
	if !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}
