package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dicomiot/dhome-core/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time (ms) to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho MQTT options from bus config and
// per-connection identity.
func buildClientOptions(cfg config.BusConfig, opts Options) (*pahomqtt.ClientOptions, error) {
	clientOpts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.TLS.Enabled {
		scheme = "ssl"
	}
	clientOpts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))

	clientOpts.SetClientID(opts.ClientID)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	clientOpts.SetCleanSession(opts.CleanSession)

	// Auto-reconnect with exponential backoff.
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectRetry(true)
	clientOpts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	clientOpts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	clientOpts.SetConnectTimeout(defaultConnectTimeout)
	clientOpts.SetKeepAlive(defaultKeepAlive)

	if cfg.TLS.Enabled {
		tlsConfig, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		clientOpts.SetTLSConfig(tlsConfig)
	}

	if opts.Will != nil {
		clientOpts.SetBinaryWill(opts.Will.Topic, opts.Will.Payload, opts.Will.QoS, opts.Will.Retained)
	}

	return clientOpts, nil
}

// buildTLSConfig loads the CA bundle and the client certificate pair.
// The cloud broker authenticates gateways by client certificate; the
// credential pair in the envelope is checked separately by the backend.
func buildTLSConfig(cfg config.BusTLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tlsMinVersion,
	}

	if cfg.CAFile != "" {
		caPEM, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading CA file: %w", ErrTLSConfig, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("%w: no certificates in %s", ErrTLSConfig, cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: loading client certificate: %w", ErrTLSConfig, err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}
