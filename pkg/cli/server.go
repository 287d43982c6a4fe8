package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/config"
	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/logging"
	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/predict"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const (
	serverShutdownWaitSeconds = 5
	serverReadTimeoutSeconds  = 10
	serverWriteTimeoutSeconds = 30
	serverMaxHeaderBytes      = 20
)

var (
	addressFlag = &cli.StringFlag{
		Name:  "address",
		Usage: "Address on which the server will listen",
		Value: config.DefaultServerAddress,
	}

	portFlag = &cli.IntFlag{
		Name:  "port",
		Usage: "Port on which the server will listen",
		Value: config.DefaultServerPort,
	}

	logFileFlag = &cli.StringFlag{
		Name:  "log-file",
		Usage: "Write request logs to this file, rotated by size (optional, default: stdout)",
	}

	serveCmd = &cli.Command{
		Name:    "serve",
		Aliases: []string{"server"},
		Usage:   "Load the model and serve predictions over HTTP",
		Action:  cmdServe,
		Flags: []cli.Flag{
			addressFlag,
			portFlag,
			logFileFlag,
		},
	}
)

func cmdServe(c *cli.Context) error {
	cfg := getConfig(c)

	address := cfg.Config.Server.Address
	if c.IsSet(addressFlag.Name) || address == "" {
		address = c.String(addressFlag.Name)
	}
	port := cfg.Config.Server.Port
	if c.IsSet(portFlag.Name) || port == 0 {
		port = c.Int(portFlag.Name)
	}
	logFile := cfg.Config.Server.LogFile
	if c.IsSet(logFileFlag.Name) {
		logFile = c.String(logFileFlag.Name)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader, err := newLoader(ctx, cfg)
	if err != nil {
		return err
	}
	defer loader.Close()

	// the model is loaded once, a failure here ends the process before it listens
	m, err := loader.LoadModel(ctx, cfg.ModelURI)
	if err != nil {
		return fmt.Errorf("loading model %s: %w", cfg.ModelURI, err)
	}
	svc, err := predict.NewService(m)
	if err != nil {
		return err
	}
	slog.Info("model loaded", "uri", cfg.ModelURI)

	var w io.Writer = c.App.Writer
	if logFile != "" {
		fw := logging.NewFileWriter(logFile)
		defer fw.Close()
		w = fw
	}
	level := cfg.Config.LogLevel
	if cfg.Debug {
		level = "debug"
	}

	s := newServer(makeRouter(svc, cfg.ModelURI, logging.NewServerLogger(level, w)))

	ln, err := net.Listen("tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("listening on %s:%d: %w", address, port, err)
	}
	slog.Info("server started", "address", "http://"+ln.Addr().String())

	return runServer(ctx, s, ln)
}

func newServer(h http.Handler) *http.Server {
	return &http.Server{
		Handler:        h,
		ReadTimeout:    serverReadTimeoutSeconds * time.Second,
		WriteTimeout:   serverWriteTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}
}

// runServer serves on ln until ctx is done, then shuts s down gracefully.
func runServer(ctx context.Context, s *http.Server, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
		defer cancel()

		if err := s.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutting down server: %w", err)
		}
		slog.Info("server stopped")
		return nil
	})

	return g.Wait()
}

func makeRouter(svc *predict.Service, modelURI string, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /predict", predictAPIHandler(svc))
	mux.HandleFunc("GET /health", healthAPIHandler(modelURI))

	return Chain(Logger(logger), Recovery(logger))(mux)
}
