package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Luismorlan/pow_ledger/api"
	"github.com/Luismorlan/pow_ledger/config"
	"github.com/Luismorlan/pow_ledger/full_node"
	"github.com/Luismorlan/pow_ledger/layout"
	"github.com/Luismorlan/pow_ledger/logger"
	"github.com/Luismorlan/pow_ledger/metrics"
	"github.com/Luismorlan/pow_ledger/model"
	"github.com/Luismorlan/pow_ledger/network"
	"github.com/Luismorlan/pow_ledger/service"
	"github.com/Luismorlan/pow_ledger/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

type options struct {
	host             string
	port             string
	httpPort         string
	join             string
	init             bool
	miner            string
	configPath       string
	predefinedBlocks string
	malicious        string
	console          bool
	debugMode        bool
}

func main() {
	opts := options{}
	rootCmd := &cobra.Command{
		Use:   "full_node",
		Short: "Run a proof of work ledger node",
		Long: `Run a full node: it keeps the longest valid chain, gossips blocks and
transactions with its peers over gRPC, serves the JSON API for wallets, and
optionally mines.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	f := rootCmd.Flags()
	f.StringVar(&opts.host, "host", "localhost", "host peers use to reach this node")
	f.StringVar(&opts.port, "port", "10000", "port to listen to peers and wallets (gRPC)")
	f.StringVar(&opts.httpPort, "http_port", "8000", "port of the JSON API, empty disables it")
	f.StringVar(&opts.join, "join", "", "host:port of a node to join")
	f.BoolVar(&opts.init, "init", false, "create the genesis block when the chain is empty")
	f.StringVar(&opts.miner, "miner", "", "mine and pay rewards to this address")
	f.StringVar(&opts.configPath, "config_path", "", "path to full node config")
	f.StringVar(&opts.predefinedBlocks, "predefined_blocks", "", "json file of a chain to start from")
	f.StringVar(&opts.malicious, "malicious", "", "json file of a forked chain to start from")
	f.BoolVar(&opts.console, "console", true, "read commands from the terminal")
	f.BoolVar(&opts.debugMode, "debug_mode", false, "plain stdin console and stderr logs instead of the terminal UI")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.AppConfig, error) {
	if path == "" {
		return config.DefaultAppConfig(), nil
	}
	return config.ParseAppConfig(path)
}

func readBlocks(path string) ([]model.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var blocks []model.Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return blocks, nil
}

func run(ctx context.Context, opts options) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gui := opts.console && !opts.debugMode
	var view *layout.ViewWriter
	var log *zap.Logger
	if gui {
		view = layout.NewViewWriter()
		log, err = logger.NewWithWriter(cfg.LOG_LEVEL, view)
	} else {
		log, err = logger.New(cfg.LOG_LEVEL)
	}
	if err != nil {
		return err
	}
	defer log.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	nodeOpts := []full_node.Option{full_node.WithMetrics(m), full_node.WithLogger(log)}
	var store *storage.ChainStore
	if cfg.DATA_DIR != "" {
		if store, err = storage.Open(cfg.DATA_DIR); err != nil {
			return err
		}
		defer store.Close()
		nodeOpts = append(nodeOpts, full_node.WithStore(store))
	}
	node := full_node.NewFullNode(cfg, nodeOpts...)

	if store != nil {
		chain, orphans, err := store.Load()
		if err != nil {
			return fmt.Errorf("load stored chain: %w", err)
		}
		if err := node.Restore(chain, orphans); err != nil {
			return fmt.Errorf("restore stored chain: %w", err)
		}
		log.Info("chain restored", zap.Int("length", len(chain)), zap.Int("orphans", len(orphans)))
	}
	for _, path := range []string{opts.predefinedBlocks, opts.malicious} {
		if path == "" {
			continue
		}
		blocks, err := readBlocks(path)
		if err != nil {
			return err
		}
		if err := node.LoadChain(blocks); err != nil {
			log.Warn("cannot load predefined blocks", zap.String("file", path), zap.Error(err))
		}
	}
	if opts.init && node.GetHeight() == 0 {
		owner := opts.miner
		if owner == "" {
			owner = node.GetUuid()
		}
		genesis := node.NewCandidateBlock(owner)
		if err := node.HandleMinedBlock(&genesis); err != nil {
			return err
		}
	}

	addr := network.Address{IpAddr: opts.host, Port: opts.port}
	lis, err := net.Listen("tcp", addr.String())
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	sev := full_node.NewFullNodeServer(ctx, node, addr,
		full_node.WithServerMetrics(m),
		full_node.WithServerLogger(log))
	defer sev.Close()
	grpcServer := grpc.NewServer()
	service.RegisterFullNodeServiceServer(grpcServer, sev)
	go func() {
		log.Info("starting to serve peers", zap.Stringer("addr", addr))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("grpc server stopped", zap.Error(err))
		}
	}()
	defer grpcServer.GracefulStop()

	var httpServer *http.Server
	if opts.httpPort != "" {
		gin.SetMode(gin.ReleaseMode)
		httpServer = &http.Server{
			Addr:              net.JoinHostPort(opts.host, opts.httpPort),
			Handler:           api.NewRouter(node, sev, reg, log),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("starting JSON API", zap.String("addr", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server stopped", zap.Error(err))
			}
		}()
	}

	if opts.join != "" {
		remote, err := network.ParseAddress(opts.join)
		if err != nil {
			return fmt.Errorf("invalid --join address: %w", err)
		}
		if err := sev.Join(ctx, remote); err != nil {
			return fmt.Errorf("join %s: %w", remote, err)
		}
		log.Info("joined network", zap.Stringer("via", remote), zap.Int("length", node.GetHeight()))
	}

	if opts.miner != "" {
		sev.EnableMining(opts.miner).Start(ctx)
	}
	switch {
	case gui:
		if err := runGui(ctx, sev, view, log, cancel); err != nil {
			return fmt.Errorf("start console: %w", err)
		}
	case opts.console:
		go runConsole(ctx, os.Stdin, sev, log)
	}

	<-ctx.Done()
	log.Info("shutting down")
	if httpServer != nil {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		httpServer.Shutdown(sctx)
	}
	return nil
}
