// Command yuvd runs the token-overlay node: it wires configuration,
// storage, the event bus, the confirmation tracker, the isolated
// checker, the graph attacher, the mempool lifecycle manager, the
// controller, and the JSON-RPC and metrics listeners, then blocks until
// an interrupt signal asks for a graceful shutdown. It follows the
// teacher's entrypoint shape (main.go): one flat func main building
// every component in dependency order and deferring Close/Stop calls,
// generalized to this pipeline's component set.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yuvchain/yuvd/pkg/analytics"
	"github.com/yuvchain/yuvd/pkg/attacher"
	"github.com/yuvchain/yuvd/pkg/bitcoinrpc"
	"github.com/yuvchain/yuvd/pkg/checker"
	"github.com/yuvchain/yuvd/pkg/config"
	"github.com/yuvchain/yuvd/pkg/confirmation"
	"github.com/yuvchain/yuvd/pkg/controller"
	"github.com/yuvchain/yuvd/pkg/eventbus"
	"github.com/yuvchain/yuvd/pkg/mempool"
	"github.com/yuvchain/yuvd/pkg/metrics"
	"github.com/yuvchain/yuvd/pkg/rpcserver"
	"github.com/yuvchain/yuvd/pkg/storage"
	"github.com/yuvchain/yuvd/pkg/syncmirror"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("yuvd: %v", err)
	}
}

func run() error {
	logger := log.New(os.Stderr, "[yuvd] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := storage.Open(dbm.GoLevelDBBackend, "yuvd", cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	bus := eventbus.New(1024)
	bus.Configure(eventbus.KindGetData, eventbus.Unbounded)
	bus.Configure(eventbus.KindInventory, eventbus.Unbounded)

	chain, err := bitcoinrpc.New(bitcoinrpc.Config{
		URL:  cfg.BitcoinRPCURL,
		User: cfg.BitcoinRPCUser,
		Pass: cfg.BitcoinRPCPass,
	})
	if err != nil {
		return err
	}
	defer chain.Shutdown()

	tracker := confirmation.NewTracker(chain, bus, cfg.ConfirmationsDepth)

	ck := checker.New(cfg.ReversibleFreeze)
	mp := mempool.New(store, bus)
	at := attacher.New(store, bus, chain, mp, attacher.Config{
		MaxConfirmationTime: cfg.MaxConfirmationTime,
	})

	var analyticsRepo *analytics.Repository
	if cfg.AnalyticsDatabaseURL != "" {
		analyticsClient, err := analytics.NewClient(cfg.AnalyticsDatabaseURL)
		if err != nil {
			return err
		}
		defer analyticsClient.Close()
		if err := analyticsClient.EnsureSchema(context.Background()); err != nil {
			return err
		}
		analyticsRepo = analytics.NewRepository(analyticsClient)
	}

	dashboardClient, err := syncmirror.NewClient(context.Background(), syncmirror.Config{
		ProjectID:       cfg.FirebaseProjectID,
		CredentialsFile: cfg.FirebaseCredentialsFile,
		Enabled:         cfg.FirestoreEnabled,
	})
	if err != nil {
		return err
	}
	defer dashboardClient.Close()
	dashboard := syncmirror.NewSyncService(dashboardClient, logger)

	ctrl := controller.New(store, mp, ck, at, tracker, bus, nil, controller.Config{
		PoolSize:         cfg.PoolSize,
		MaxRequestSize:   cfg.MaxRequestSize,
		InvShareInterval: cfg.InvShareInterval,
	})
	ctrl.SetMirrors(analyticsRepo, dashboard)

	reg := prometheus.NewRegistry()
	_ = metrics.New(reg)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, reg)

	rpcAPI := rpcserver.NewAPI(ctrl)
	rpcSrv, err := rpcserver.New(cfg.ListenAddr, rpcAPI)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	at.Start(ctx)
	ctrl.Start(ctx)

	go func() {
		if err := rpcSrv.ListenAndServe(ctx); err != nil {
			logger.Printf("rpc server stopped: %v", err)
		}
	}()
	go func() {
		if err := metricsSrv.ListenAndServe(ctx); err != nil {
			logger.Printf("metrics server stopped: %v", err)
		}
	}()

	logger.Printf("yuvd listening: rpc=%s metrics=%s data=%s", cfg.ListenAddr, cfg.MetricsAddr, cfg.DataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Println("shutting down")
	cancel()
	at.Stop()
	ctrl.Stop()
	return nil
}
