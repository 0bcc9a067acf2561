package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jutuon/afrodite-backend-sub001/config"
	"github.com/jutuon/afrodite-backend-sub001/internal/platform/redisx"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InitMongo dials MongoDB and returns the database handle, grounded in the
// connectify-v2 events-service's bootstrap.InitMongo.
func InitMongo(ctx context.Context, cfg *config.Config) (*mongo.Client, *mongo.Database, error) {
	clientOpts := options.Client().ApplyURI(cfg.MongoURI).SetMaxPoolSize(100).SetSocketTimeout(10 * time.Second)
	if cfg.MongoUser != "" {
		clientOpts.SetAuth(options.Credential{Username: cfg.MongoUser, Password: cfg.MongoPassword})
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client, client.Database(cfg.DBName), nil
}

// InitRedis dials the single-node Redis instance backing C1/C3/C5, waiting
// up to 60s for it to become available (grounded in the same bootstrap
// pattern's InitRedis retry loop, adapted from ClusterClient to the single
// redisx.Client shape this service uses — see DESIGN.md).
func InitRedis(cfg *config.Config) (*redisx.Client, error) {
	client := redisx.New(redisx.Config{Addrs: cfg.RedisURLs, Password: cfg.RedisPass})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		if client.IsAvailable(ctx) {
			return client, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to connect to redis within 60s")
		case <-ticker.C:
			log.Println("waiting for redis to become ready...")
		}
	}
}
