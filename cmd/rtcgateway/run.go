package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/nodeglow/rtcgateway/internal/credentials"
	"github.com/nodeglow/rtcgateway/internal/grpcserver"
	"github.com/nodeglow/rtcgateway/internal/job"
	"github.com/nodeglow/rtcgateway/internal/logging"
	"github.com/nodeglow/rtcgateway/internal/metrics"
	"github.com/nodeglow/rtcgateway/internal/p2p"
	"github.com/nodeglow/rtcgateway/internal/reflection"
	"github.com/nodeglow/rtcgateway/internal/rtcconfig"
	"github.com/nodeglow/rtcgateway/internal/scraper"
	"github.com/nodeglow/rtcgateway/internal/scraperpb"
	"github.com/nodeglow/rtcgateway/internal/transport"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the fallback gRPC server interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rtcconfig.Load(cfgFile)
			if err != nil {
				return err
			}
			return runGRPC(withShutdownSignal(cmd.Context()), cfg)
		},
	}
}

func withShutdownSignal(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Logger().Info("signal received, shutting down")
		cancel()
	}()
	return ctx
}

// serveMetrics exposes the Prometheus registry on cfg.MetricsAddr in the
// background. Bind failures are logged, not fatal: metrics are diagnostic,
// never load-bearing for the gateway's actual job.
func serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	metrics.Register()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger().Sugar().Warnw("metrics server stopped", "error", err)
		}
	}()
}

func newJobQueueAndService(cfg rtcconfig.Config) (*job.Queue, *scraper.Service) {
	q := job.NewQueue()
	svc := scraper.NewService(q, cfg.DownloadPath)
	return q, svc
}

func runGRPC(ctx context.Context, cfg rtcconfig.Config) error {
	serveMetrics(ctx, cfg.MetricsAddr)
	_, svc := newJobQueueAndService(cfg)
	srv := grpcserver.New(grpcserver.Config{
		ListenAddr: cfg.GRPCAddr,
		AuthToken:  cfg.AuthToken,
		JWTSecret:  []byte(cfg.JWTSecret),
		JWTIssuer:  cfg.JWTIssuer,
	}, svc)
	return srv.ListenAndServe(ctx)
}

// runP2P authenticates to the signaling server and hands every answered
// peer's data channel its own Transport wired to the same ETCScraper
// handlers and reflection service the fallback gRPC path exposes.
func runP2P(ctx context.Context, cfg rtcconfig.Config) error {
	serveMetrics(ctx, cfg.MetricsAddr)
	credPath := cfg.CredentialsPath
	if credPath == "" {
		credPath = credentials.DefaultPath()
	}
	creds, err := credentials.Load(credPath)
	if err != nil {
		logging.Logger().Sugar().Errorw("p2p mode requires credentials; run --p2p-setup first", "error", err)
		return err
	}

	_, svc := newJobQueueAndService(cfg)
	refl := reflection.New(scraperpb.DescriptorSet())

	newTransport := func(dc *webrtc.DataChannel) *transport.Transport {
		t := transport.NewTransport(dc, transport.DefaultOptions())
		svc.Register(t)
		reflection.Register(t, refl)
		return t
	}

	signaling := p2p.NewSignalingClient(p2p.SignalingConfig{
		URL:    cfg.P2PSignalingURL,
		APIKey: creds.APIKey,
		AppID:  creds.AppID,
	})
	orch := p2p.NewOrchestrator(signaling, p2p.Config{}, newTransport)

	errCh := make(chan error, 2)
	go func() { errCh <- signaling.Run(ctx) }()
	go func() { errCh <- orch.Run(ctx) }()

	var errs error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && ctx.Err() == nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
