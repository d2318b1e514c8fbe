// Package redis publishes produced signals to Redis so dashboards and other
// consumers can read the latest state without polling the HTTP API. The
// publisher is optional: the service runs fine without a Redis address.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"tradesrv/internal/model"
)

const defaultLatestTTL = 30 * time.Minute

// Config configures the signal publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	TTL      time.Duration // TTL on the latest-signal key (default 30m)
}

// Publisher writes the latest signal per symbol and fans it out over
// PubSub. Writes go through a circuit breaker so a dead Redis cannot stall
// the signal path.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker
	ttl    time.Duration
}

// NewPublisher connects to Redis and pings the server.
func NewPublisher(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultLatestTTL
	}

	cb := NewCircuitBreaker(5, 10*time.Second)
	cb.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client, cb: cb, ttl: ttl}, nil
}

// PublishSignal sets the latest-signal key for the symbol and publishes the
// payload, pipelined into a single round trip.
func (p *Publisher) PublishSignal(ctx context.Context, sig model.Signal) error {
	payload := sig.JSON()
	return p.cb.Execute(func() error {
		pipe := p.client.Pipeline()
		pipe.Set(ctx, "signal:latest:"+sig.Symbol, payload, p.ttl)
		pipe.Publish(ctx, "pub:signal:"+sig.Symbol, payload)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Close releases the client connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
