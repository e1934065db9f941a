package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/juhwano/backend-challenge-chat-server/internal/bus"
	"github.com/juhwano/backend-challenge-chat-server/internal/config"
	"github.com/juhwano/backend-challenge-chat-server/internal/hub"
	"github.com/juhwano/backend-challenge-chat-server/internal/logger"
	"github.com/juhwano/backend-challenge-chat-server/internal/membership"
	"github.com/juhwano/backend-challenge-chat-server/internal/presence"
	"github.com/juhwano/backend-challenge-chat-server/internal/queue"
	"github.com/juhwano/backend-challenge-chat-server/internal/repository"
	"github.com/juhwano/backend-challenge-chat-server/internal/router"
	"github.com/juhwano/backend-challenge-chat-server/internal/server"
)

// Server owns every dependency of one chat-server process.
type Server struct {
	cfg       *config.Config
	log       *zap.SugaredLogger
	app       *fiber.App
	repo      *repository.MongoRepository
	transport *bus.RedisTransport
	bridge    *bus.Bridge
	producer  *queue.Producer
	consumer  *queue.Consumer

	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(cfg *config.Config, log *zap.SugaredLogger) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	repo, err := repository.NewMongoRepository(ctx, cfg.Mongo.URI, cfg.Mongo.DB)
	if err != nil {
		cancel()
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	transport := bus.NewRedisTransport(rdb, log)

	h := hub.New()
	tracker := presence.NewTracker()

	// the origin ID distinguishes this process's own bus events from
	// everyone else's, so echoes are never delivered twice
	bridge := bus.NewBridge(uuid.NewString(), cfg.Redis.Channel, transport, h, log)

	msgRouter := router.New(repo, repo, h, bridge, transport, log)
	msgRouter.SetLimits(cfg.Chat.MaxContentLength, cfg.Chat.GroupCapacity)

	members := membership.NewManager(repo, cfg.Chat.GroupCapacity)
	coord := server.NewCoordinator(repo, members, msgRouter, h, tracker, bridge, transport, log)

	// direct store writes by default; with Kafka enabled sends become
	// persist jobs applied by the consumer group
	var (
		sender   server.MessageSender = msgRouter
		producer *queue.Producer
		consumer *queue.Consumer
	)
	if cfg.Kafka.Enabled {
		producer = queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		consumer = queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, msgRouter, log)
		sender = queue.NewSender(msgRouter, producer)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	server.NewHandler(repo, members, sender, h, log).Register(app)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(server.WebsocketHandler(coord, sender, repo, log)))

	return &Server{
		cfg:       cfg,
		log:       log,
		app:       app,
		repo:      repo,
		transport: transport,
		bridge:    bridge,
		producer:  producer,
		consumer:  consumer,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (s *Server) Start() {
	go s.transport.Consume(s.ctx, s.cfg.Redis.Channel, s.bridge.Dispatch)
	if s.consumer != nil {
		go s.consumer.Run(s.ctx)
	}

	go func() {
		s.log.Infow("starting chat server", "port", s.cfg.Server.Port)
		if err := s.app.Listen(":" + s.cfg.Server.Port); err != nil {
			s.log.Fatalw("server exited unexpectedly", "err", err)
		}
	}()
}

func (s *Server) Shutdown() {
	s.log.Info("shutting down chat server...")
	s.cancel()

	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			s.log.Errorw("close queue consumer", "err", err)
		}
	}
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			s.log.Errorw("close queue producer", "err", err)
		}
	}
	if err := s.transport.Close(); err != nil {
		s.log.Errorw("close redis", "err", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.repo.Disconnect(ctx); err != nil {
		s.log.Errorw("disconnect mongo", "err", err)
	}
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		s.log.Errorw("shutdown http server", "err", err)
	}

	s.log.Info("chat server stopped")
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(logger.Config{Development: cfg.Server.Development})
	if err != nil {
		panic("failed to build logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	srv, err := NewServer(cfg, log)
	if err != nil {
		log.Fatalw("failed to initialize server", "err", err)
	}
	srv.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Infow("received signal, shutting down", "signal", sig.String())

	srv.Shutdown()
}
