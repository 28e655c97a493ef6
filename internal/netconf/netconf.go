// Package netconf shells out to the system network helpers the
// gateway image ships under /etc/dhome. The control plane treats them
// as opaque commands; everything is bounded by a context timeout.
package netconf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Helper script locations on the gateway image.
const (
	checkIPLocalScript = "/etc/dhome/network/check_ip_local"
	addWifiScript      = "/etc/dhome/network/add_wifi"
	updateScript       = "/etc/dhome/system/update"
	mosquittoPasswd    = "/etc/mosquitto/passwords"
	brokerUser         = "dicomiots"
)

// defaultTimeout bounds each helper invocation.
const defaultTimeout = 30 * time.Second

// ErrCommandFailed wraps helper failures with their output.
var ErrCommandFailed = errors.New("netconf: command failed")

// Runner executes the system helpers.
type Runner struct {
	timeout time.Duration
	logger  *slog.Logger

	// run is swappable in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewRunner creates a helper runner. logger may be nil.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		timeout: defaultTimeout,
		logger:  logger,
		run:     runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

func (r *Runner) exec(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	output, err := r.run(ctx, name, args...)
	if err != nil {
		r.logger.Warn("network helper failed", "command", name, "error", err)
		return "", fmt.Errorf("%w: %s: %s", ErrCommandFailed, name, strings.TrimSpace(string(output)))
	}
	return strings.TrimSpace(string(output)), nil
}

// LocalIP returns the gateway's current LAN address.
func (r *Runner) LocalIP(ctx context.Context) (string, error) {
	return r.exec(ctx, checkIPLocalScript)
}

// AddWifi joins the gateway to a WLAN.
func (r *Runner) AddWifi(ctx context.Context, ssid, password string) error {
	_, err := r.exec(ctx, addWifiScript, ssid, password)
	return err
}

// SetBrokerPassword rotates the local broker credential to the
// gateway token, so only provisioned apps can connect.
func (r *Runner) SetBrokerPassword(ctx context.Context, token string) error {
	_, err := r.exec(ctx, "mosquitto_passwd", "-b", mosquittoPasswd, brokerUser, token)
	return err
}

// UpdateSoftware starts a firmware update to the given version.
func (r *Runner) UpdateSoftware(ctx context.Context, version string) error {
	_, err := r.exec(ctx, updateScript, version, "dicomiot")
	return err
}
