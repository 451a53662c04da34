package server

import (
	"context"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/docstore/internal/api/http"
	"github.com/Zereker/docstore/internal/api/mcp"
	"github.com/Zereker/docstore/internal/docstore"
	"github.com/Zereker/docstore/pkg/kv"
	"github.com/Zereker/docstore/pkg/log"
	"github.com/Zereker/docstore/pkg/mq"
	"github.com/Zereker/docstore/pkg/redis"
)

// Server represents the docstore server
type Server struct {
	config   Config
	logger   *slog.Logger
	backend  kv.Backend
	producer *mq.KafkaProducer
	repo     *docstore.Repository
}

// NewServer creates a new server with the given configuration
func NewServer(conf Config) (*Server, error) {
	server := &Server{
		config: conf,
	}

	if err := server.initDepend(); err != nil {
		return nil, errors.WithMessage(err, "init server dependency failed")
	}

	if err := server.initRepository(); err != nil {
		return nil, errors.WithMessage(err, "init repository failed")
	}

	return server, nil
}

// initDepend initializes all dependencies
func (s *Server) initDepend() error {
	// Initialize log first
	if err := log.Init(s.config.Log); err != nil {
		return errors.WithMessage(err, "failed to init log")
	}

	// Create logger for this module
	s.logger = log.Logger("server")
	s.logger.Info("initializing dependencies")

	// Initialize Redis, or keep everything in process when it is disabled
	if s.config.Redis.Enabled {
		s.logger.Info("initializing redis", "addr", s.config.Redis.Addr)
		if err := redis.Init(s.config.Redis); err != nil {
			return errors.WithMessage(err, "failed to init redis")
		}
		s.backend = redis.NewBackend(redis.Client(), s.config.Redis.ScanCount)
	} else {
		s.logger.Warn("redis disabled, using in-memory backend")
		s.backend = kv.NewMemoryBackend()
	}

	// Initialize Kafka change event producer
	s.logger.Info("initializing message queue")
	producer, err := mq.NewKafkaProducer(s.config.Kafka)
	if err != nil {
		return errors.WithMessage(err, "failed to init message queue")
	}
	s.producer = producer

	return nil
}

// initRepository builds the collection repository from the store config
func (s *Server) initRepository() error {
	s.logger.Info("initializing repository")

	defaults, err := s.config.Store.Defaults()
	if err != nil {
		return err
	}
	overrides, err := s.config.Store.Overrides()
	if err != nil {
		return err
	}

	var opts []docstore.RepositoryOption
	for name, o := range overrides {
		opts = append(opts, docstore.WithCollectionOptions(name, o))
	}
	if s.producer != nil {
		opts = append(opts, docstore.WithChangeNotifier(
			docstore.NewNotifier(s.producer, s.config.Kafka.TopicPrefix),
		))
	}

	s.repo = docstore.NewRepository(s.backend, defaults, opts...)
	return nil
}

// Repository returns the repository served by s.
func (s *Server) Repository() *docstore.Repository {
	return s.repo
}

// Start starts the server based on configuration mode
func (s *Server) Start() error {
	s.logger.Info("starting", "mode", s.config.Server.Mode, "port", s.config.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
			s.logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	switch s.config.Server.Mode {
	case "http":
		g.Go(func() error {
			return s.runHTTPServer(ctx)
		})
	case "mcp":
		g.Go(func() error {
			return s.runMCPServer(ctx)
		})
	case "both":
		g.Go(func() error {
			return s.runHTTPServer(ctx)
		})
		g.Go(func() error {
			return s.runMCPServer(ctx)
		})
	default:
		return errors.Errorf("unknown mode: %s", s.config.Server.Mode)
	}

	return g.Wait()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down")

	if err := s.producer.Close(); err != nil {
		s.logger.Error("failed to close message queue", "error", err)
	}

	// The redis backend shares the singleton client, so closing the
	// singleton closes the backend as well.
	if s.config.Redis.Enabled {
		if err := redis.Close(); err != nil {
			s.logger.Error("failed to close redis", "error", err)
		}
		return nil
	}

	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			s.logger.Error("failed to close repository", "error", err)
		}
	}

	return nil
}

func (s *Server) runHTTPServer(ctx context.Context) error {
	serverCfg := http.DefaultServerConfig()
	serverCfg.Port = s.config.Server.Port

	srv := http.NewServer(s.repo, serverCfg)

	// Shutdown when context is cancelled
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
		return errors.WithMessage(err, "http server error")
	}
	return nil
}

func (s *Server) runMCPServer(ctx context.Context) error {
	server := mcp.NewServer(s.repo, mcp.ServerConfig{
		Name:    "docstore",
		Version: "0.1.0",
	})

	if err := server.RunStdio(ctx); err != nil && err != context.Canceled {
		return errors.WithMessage(err, "mcp server error")
	}
	return nil
}
