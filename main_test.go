package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testOptions() options {
	return options{
		manifestPath:    "examples/components.yaml",
		httpAddr:        "127.0.0.1:0",
		grpcAddr:        "127.0.0.1:0",
		shutdownTimeout: time.Second,
	}
}

func TestRun_MissingManifests(t *testing.T) {
	o := testOptions()
	o.manifestPath = "does-not-exist.yaml"
	err := run(context.Background(), o)
	require.ErrorContains(t, err, "load manifests")
}

func TestRun_ListenFailureReturnsError(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	o := testOptions()
	o.grpcAddr = busy.Addr().String()
	err = run(context.Background(), o)
	require.ErrorContains(t, err, "listen "+o.grpcAddr)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, testOptions()) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
