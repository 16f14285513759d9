package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/PassportDesk/config"
	"github.com/BearBump/PassportDesk/internal/actiontoken"
	"github.com/BearBump/PassportDesk/internal/broker/kafka"
	"github.com/BearBump/PassportDesk/internal/broker/messages"
	"github.com/BearBump/PassportDesk/internal/cache/rediscache"
	"github.com/BearBump/PassportDesk/internal/services/passports"
	"github.com/BearBump/PassportDesk/internal/storage/pgpassport"
)

type passportAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   passportAPIOpts
	deps   passportAPIDeps

	closers []func()
}

func mustBootstrapPassportAPI() *passportAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		swaggerPath = "api/swagger.json"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	if cfg.PassportAPI.TokenSecret == "" {
		panic("passport_api.token_secret is required")
	}

	httpAddr := cfg.PassportAPI.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.PassportAPI.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "passport-api"
	}
	topic := cfg.Kafka.PassportTransitionedTopicName
	if topic == "" {
		topic = messages.TopicPassportTransitioned
	}
	cacheTTL := time.Duration(cfg.PassportAPI.CurrentStatusTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	perMinute := int64(cfg.PassportAPI.TransitionsPerMinute)
	if perMinute <= 0 {
		perMinute = 60
	}

	st := mustOpenPostgresWithRetry(cfg.Database.ConnString(), 60*time.Second)

	rdb := rediscache.Dial(cfg.Redis.Addr())
	rc := rediscache.NewStatusCache(rdb)
	rl := rediscache.NewActionLimiter(rdb)

	producer := kafka.NewProducer(cfg.Kafka.Brokers(), topic)
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers(), topic, consumerGroup)

	svc := passports.New(st, rc, producer, rl, passports.Options{
		CurrentTTL:           cacheTTL,
		TransitionsPerMinute: perMinute,
		MaxBulk:              cfg.PassportAPI.MaxBulkSize,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &passportAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: passportAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		deps: passportAPIDeps{
			svc:      svc,
			tokens:   actiontoken.NewSigner(cfg.PassportAPI.TokenSecret),
			ready:    st,
			consumer: consumer,
		},
		closers: []func(){
			func() { _ = consumer.Close() },
			func() { _ = producer.Close() },
			func() { _ = rdb.Close() },
			st.Close,
		},
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgpassport.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgpassport.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *passportAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for _, c := range a.closers {
		c()
	}
}

func (a *passportAPIApp) Run() error {
	return runPassportAPI(a.ctx, a.opts, a.deps)
}
