package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/tphakala/vocalcoach/internal/logger"
)

// TestResult is the outcome of one connection test stage
type TestResult struct {
	Success   bool   `json:"success"`
	Stage     string `json:"stage"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
	State     string `json:"state"` // completed, failed, timeout
	Timestamp string `json:"timestamp"`
}

// TestStage represents a stage in the MQTT test process
type TestStage int

const (
	DNSResolution TestStage = iota
	TCPConnection
	MQTTConnection
	MessagePublish
)

// String returns the string representation of a test stage
func (s TestStage) String() string {
	switch s {
	case DNSResolution:
		return "DNS Resolution"
	case TCPConnection:
		return "TCP Connection"
	case MQTTConnection:
		return "MQTT Connection"
	case MessagePublish:
		return "Message Publishing"
	default:
		return "Unknown Stage"
	}
}

// Timeout constants for various test stages
const (
	dnsTimeout  = 5 * time.Second
	tcpTimeout  = 5 * time.Second
	mqttTimeout = 10 * time.Second
	pubTimeout  = 5 * time.Second
)

const defaultPort = "1883"

// brokerHostPort extracts host and host:port from a broker URL, adding the
// default port when none is given
func brokerHostPort(broker string) (host, hostPort string, err error) {
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	u, err := url.Parse(broker)
	if err != nil {
		return "", "", err
	}
	host = u.Hostname()
	if host == "" {
		return "", "", fmt.Errorf("broker URL %q has no host", broker)
	}
	port := u.Port()
	if port == "" {
		port = defaultPort
	}
	return host, net.JoinHostPort(host, port), nil
}

// runNetworkTest executes one stage under its own timeout
func runNetworkTest(ctx context.Context, stage TestStage, timeout time.Duration, test func(context.Context) error) TestResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := test(ctx)
	switch {
	case err == nil:
		return TestResult{Success: true, Stage: stage.String(), Message: fmt.Sprintf("Successfully completed %s", stage), State: "completed"}
	case ctx.Err() != nil:
		return TestResult{Stage: stage.String(), Message: fmt.Sprintf("%s operation timed out", stage), Error: err.Error(), State: "timeout"}
	default:
		return TestResult{Stage: stage.String(), Message: fmt.Sprintf("Failed to perform %s", stage), Error: err.Error(), State: "failed"}
	}
}

// TestConnection runs DNS, TCP, MQTT connect and publish stages against
// the configured broker and streams each result. It stops at the first
// failing stage. DNS is skipped for IP brokers.
func TestConnection(ctx context.Context, config Config, resultChan chan<- TestResult) {
	defer close(resultChan)
	log := GetLogger()

	send := func(r TestResult) bool {
		r.Timestamp = time.Now().Format(time.RFC3339)
		if r.Success {
			log.Info("mqtt test stage passed", logger.String("stage", r.Stage))
		} else {
			log.Warn("mqtt test stage failed", logger.String("stage", r.Stage), logger.String("error", r.Error))
		}
		select {
		case <-ctx.Done():
			return false
		case resultChan <- r:
			return r.Success
		}
	}

	host, hostPort, err := brokerHostPort(config.Broker)
	if err != nil {
		send(TestResult{Stage: "Test Setup", Message: "Invalid broker URL", Error: err.Error(), State: "failed"})
		return
	}

	if net.ParseIP(host) == nil {
		if !send(runNetworkTest(ctx, DNSResolution, dnsTimeout, func(ctx context.Context) error {
			_, err := net.DefaultResolver.LookupHost(ctx, host)
			return err
		})) {
			return
		}
	}

	if !send(runNetworkTest(ctx, TCPConnection, tcpTimeout, func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", hostPort)
		if err != nil {
			return err
		}
		return conn.Close()
	})) {
		return
	}

	// The cooldown guards reconnect storms, not a one-shot test
	config.ReconnectCooldown = 0
	c := NewClient(config, nil)
	defer c.Disconnect()

	if !send(runNetworkTest(ctx, MQTTConnection, mqttTimeout, c.Connect)) {
		return
	}

	send(runNetworkTest(ctx, MessagePublish, pubTimeout, func(ctx context.Context) error {
		payload, err := json.Marshal(map[string]string{
			"message":   "vocalcoach connection test",
			"timestamp": time.Now().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		return c.Publish(ctx, constructTestTopic(config.Topic), payload)
	}))
}

// constructTestTopic creates a proper test topic path handling edge cases
func constructTestTopic(baseTopic string) string {
	baseTopic = strings.TrimRight(baseTopic, "/")
	if baseTopic == "" {
		return "vocalcoach/test"
	}
	return baseTopic + "/test"
}
