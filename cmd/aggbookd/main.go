// Command aggbookd runs the unified Binance/Bitstamp order book aggregator:
// it loads configuration, wires the venue adapters into a supervisor, and
// serves the aggregated top-of-book over gRPC and a small HTTP debug API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"google.golang.org/grpc"

	"github.com/BullionBear/aggbook/internal/book"
	"github.com/BullionBear/aggbook/internal/config"
	"github.com/BullionBear/aggbook/internal/httpapi"
	"github.com/BullionBear/aggbook/internal/publisher"
	"github.com/BullionBear/aggbook/internal/rpc"
	"github.com/BullionBear/aggbook/internal/shutdown"
	"github.com/BullionBear/aggbook/internal/supervisor"
	"github.com/BullionBear/aggbook/internal/ticks"
	"github.com/BullionBear/aggbook/internal/venue/binance"
	"github.com/BullionBear/aggbook/internal/venue/bitstamp"
	"github.com/BullionBear/aggbook/internal/xlog"
)

func main() {
	configFile := flag.String("c", "", "Configuration file path")
	flag.Parse()

	logger := xlog.New(xlog.WithLevel(xlog.LevelInfo))

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			logger.Fatal("load config", xlog.Err(err))
		}
		cfg = *loaded
	} else if err := cfg.Validate(); err != nil {
		logger.Fatal("default config invalid", xlog.Err(err))
	}

	scale := ticks.Scale(cfg.PriceScale)
	b := book.New()

	pubOpts, mirrorConn := buildPublisherOptions(cfg, logger)
	pub := publisher.New(cfg.TopN, logger, pubOpts...)

	binanceAdapter := binance.New(binance.Config{
		Symbol:      cfg.Symbol,
		Scale:       scale,
		RESTBaseURL: cfg.Binance.RESTBaseURL,
		WSBaseURL:   cfg.Binance.WSBaseURL,
	}, logger)
	bitstampAdapter := bitstamp.New(bitstamp.Config{
		Symbol:      cfg.Symbol,
		Scale:       scale,
		RESTBaseURL: cfg.Bitstamp.RESTBaseURL,
		WSBaseURL:   cfg.Bitstamp.WSBaseURL,
	}, logger)

	sup := supervisor.New(supervisor.Config{
		Scale:        scale,
		RetentionCap: cfg.RetentionCap,
	}, logger, b, pub, binanceAdapter, bitstampAdapter)

	sup.Subscribe(func(e supervisor.Event) {
		logger.Info("session lifecycle", xlog.String("session_id", e.SessionID), xlog.String("phase", e.Phase), xlog.Err(e.Err))
	})

	sd := shutdown.New(logger)

	runCtx, cancelRun := context.WithCancel(context.Background())
	sd.HookShutdownCallback("supervisor", cancelRun, 5*time.Second)
	go func() {
		err := sup.Run(runCtx)
		if err == nil || err == context.Canceled {
			return
		}
		// Run only returns a non-cancellation error for a Fatal fault, which
		// per the error taxonomy is unrecoverable: exit rather than retry.
		logger.Fatal("supervisor stopped on a fatal fault", xlog.Err(err))
	}()

	grpcServer := newGRPCServer(pub, logger)
	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Fatal("listen", xlog.String("addr", cfg.ListenAddr), xlog.Err(err))
	}
	sd.HookShutdownCallback("grpc-server", grpcServer.GracefulStop, 5*time.Second)
	go func() {
		logger.Info("grpc server listening", xlog.String("addr", cfg.ListenAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server stopped", xlog.Err(err))
		}
	}()

	httpAddr := httpDebugAddr(cfg.ListenAddr)
	httpServer := newHTTPServer(httpAddr, b, scale, cfg.TopN)
	sd.HookShutdownCallback("http-server", func() { httpServer.Close() }, 5*time.Second)
	go func() {
		logger.Info("http debug server listening", xlog.String("addr", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil {
			logger.Info("http debug server stopped", xlog.Err(err))
		}
	}()

	if mirrorConn != nil {
		sd.HookShutdownCallback("nats-mirror", mirrorConn.Close, time.Second)
	}

	sd.WaitForShutdown(syscall.SIGINT, syscall.SIGTERM)
	logger.Info("shutdown complete")
}

func newGRPCServer(pub *publisher.Publisher, logger xlog.Logger) *grpc.Server {
	srv := grpc.NewServer()
	rpc.RegisterBookSummaryServiceServer(srv, rpc.NewServer(pub, logger))
	return srv
}

func newHTTPServer(addr string, b *book.Book, scale ticks.Scale, topN int) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	api := httpapi.New(b, scale, topN)
	api.Register(router.Group("/"))
	return &http.Server{Addr: addr, Handler: router}
}

// httpDebugAddr derives the debug HTTP listen address from the gRPC
// listen address by bumping the port by one, so both servers can run
// side by side from a single listen_addr config value.
func httpDebugAddr(grpcAddr string) string {
	host, port, err := net.SplitHostPort(grpcAddr)
	if err != nil {
		return grpcAddr
	}
	var p int
	if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
		return grpcAddr
	}
	return net.JoinHostPort(host, fmt.Sprintf("%d", p+1))
}

func buildPublisherOptions(cfg config.Config, logger xlog.Logger) ([]publisher.Option, *nats.Conn) {
	if cfg.NATS.URIs == "" {
		return nil, nil
	}
	conns, err := cfg.NATS.Connections()
	if err != nil {
		logger.Error("nats mirror uri invalid, continuing without it", xlog.Err(err))
		return nil, nil
	}
	for _, cc := range conns {
		logger.Info("nats mirror target", xlog.String("host", cc.Host), xlog.Int("port", cc.Port))
	}

	conn, err := nats.Connect(cfg.NATS.URIs)
	if err != nil {
		logger.Error("nats mirror connect failed, continuing without it", xlog.Err(err))
		return nil, nil
	}
	js, err := conn.JetStream()
	if err != nil {
		logger.Error("nats jetstream context failed, continuing without it", xlog.Err(err))
		conn.Close()
		return nil, nil
	}
	mirror := publisher.NewNATSMirror(js, cfg.NATS.Subject)
	return []publisher.Option{publisher.WithNATSMirror(mirror)}, conn
}
