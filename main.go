package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/bayleafwalker/bindery-scr/internal/daemon"
	"github.com/bayleafwalker/bindery-scr/internal/metadata"
	"github.com/bayleafwalker/bindery-scr/internal/registry"
	"github.com/bayleafwalker/bindery-scr/internal/resolver"
)

var setupLog = ctrl.Log.WithName("setup")

type options struct {
	manifestPath    string
	httpAddr        string
	grpcAddr        string
	shutdownTimeout time.Duration
}

func main() {
	var o options
	flag.StringVar(&o.manifestPath, "manifests", "components.yaml", "Path to a YAML file of ComponentManifest documents.")
	flag.StringVar(&o.httpAddr, "http-bind-address", ":8080", "The address the metrics, health and status endpoints bind to.")
	flag.StringVar(&o.grpcAddr, "grpc-bind-address", ":9090", "The address the gRPC health service binds to.")
	flag.DurationVar(&o.shutdownTimeout, "shutdown-timeout", 10*time.Second, "How long to wait for servers to drain on shutdown.")

	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
	if err := run(ctrl.SetupSignalHandler(), o); err != nil {
		setupLog.Error(err, "runtime exited")
		os.Exit(1)
	}
}

// run hosts the manifests until ctx is cancelled or a server fails. The
// runtime and servers are shut down before it returns.
func run(ctx context.Context, o options) error {
	manifests, err := metadata.LoadFile(o.manifestPath)
	if err != nil {
		return fmt.Errorf("load manifests %s: %w", o.manifestPath, err)
	}

	plan, err := resolver.NewDefault().Resolve(ctx, resolver.Input{Manifests: manifests})
	if err != nil {
		return fmt.Errorf("resolve manifests: %w", err)
	}
	for _, u := range plan.Diagnostics.UnresolvedRequired {
		setupLog.Info("no declared provider for required reference", "component", u.Consumer, "reference", u.Reference, "interface", u.Interface, "reason", u.Reason)
	}
	for _, u := range plan.Diagnostics.UnresolvedOptional {
		setupLog.V(1).Info("no declared provider for optional reference", "component", u.Consumer, "reference", u.Reference, "interface", u.Interface)
	}

	healthServer := health.NewServer()
	rt := daemon.New(ctrl.Log.WithName("runtime"), registry.New(ctrl.Log), healthServer)
	if err := rt.Start(manifests); err != nil {
		return fmt.Errorf("start components: %w", err)
	}
	defer rt.Close()

	lis, err := net.Listen("tcp", o.grpcAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", o.grpcAddr, err)
	}
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	httpServer := &http.Server{
		Addr:              o.httpAddr,
		Handler:           rt.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 2)
	go func() {
		setupLog.Info("serving gRPC health", "address", o.grpcAddr)
		errs <- grpcServer.Serve(lis)
	}()
	go func() {
		setupLog.Info("serving metrics and status", "address", o.httpAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		setupLog.Info("shutting down")
	case err := <-errs:
		serveErr = fmt.Errorf("server failed: %w", err)
	}

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), o.shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		setupLog.Error(err, "problem shutting down http server")
	}
	grpcServer.GracefulStop()
	return serveErr
}
