package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	var target string
	var component string
	var timeout time.Duration
	flag.StringVar(&target, "target", "127.0.0.1:9090", "gRPC health address of the runtime")
	flag.StringVar(&component, "component", "", "component configuration to check; empty checks the whole runtime")
	flag.DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", target, err)
		os.Exit(2)
	}
	defer conn.Close()

	c := healthpb.NewHealthClient(conn)

	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: component})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Check %q error: %v\n", component, err)
		os.Exit(2)
	}

	name := component
	if name == "" {
		name = "runtime"
	}
	fmt.Printf("%s: %s\n", name, resp.GetStatus().String())
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		os.Exit(1)
	}
}
