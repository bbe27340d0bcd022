package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// NewPGXPool opens a small pool used for liveness pings against Postgres.
func NewPGXPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	config.MaxConns = 2
	config.MinConns = 1
	config.HealthCheckPeriod = 5 * time.Minute
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return pool, nil
}

// PGXChecker pings Postgres.
type PGXChecker struct {
	Pool *pgxpool.Pool
}

func (c PGXChecker) Check(ctx context.Context) error {
	if c.Pool == nil {
		return ErrNotReady
	}
	return c.Pool.Ping(ctx)
}

// MongoChecker pings the Mongo primary.
type MongoChecker struct {
	Client *mongo.Client
}

func (c MongoChecker) Check(ctx context.Context) error {
	if c.Client == nil {
		return ErrNotReady
	}
	return c.Client.Ping(ctx, readpref.Primary())
}

// readiness is implemented by *delivery.AMQP.
type readiness interface {
	IsReady() bool
}

// AMQPChecker reports whether the broker connection is open.
type AMQPChecker struct {
	Conn readiness
}

func (c AMQPChecker) Check(context.Context) error {
	if c.Conn == nil || !c.Conn.IsReady() {
		return ErrNotReady
	}
	return nil
}
