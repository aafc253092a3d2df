package mqtt

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/vocalcoach/internal/mqtt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunTestReportsFailedStage(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	config := mqtt.DefaultConfig()
	config.Broker = "tcp://" + addr

	var out bytes.Buffer
	err = runTest(t.Context(), &out, config)
	require.Error(t, err)
	assert.Contains(t, out.String(), "[FAIL] TCP Connection")
}

func TestRunTestInvalidBroker(t *testing.T) {
	config := mqtt.DefaultConfig()
	config.Broker = "tcp://"

	var out bytes.Buffer
	require.Error(t, runTest(t.Context(), &out, config))
	assert.Contains(t, out.String(), "Invalid broker URL")
}
