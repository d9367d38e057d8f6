package repository

import (
	"context"

	"github.com/feed-system/photo-feed/internal/config"
	"github.com/feed-system/photo-feed/pkg/logger"
	"github.com/google/uuid"
)

// FollowGraph is implemented by FollowRepository and Neo4jFollowRepository.
type FollowGraph interface {
	Create(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error)
	Delete(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error)
	Exists(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error)
	ListFollowers(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error)
	ListFollowing(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error)
	CountFollowers(ctx context.Context, accountID uuid.UUID) (int64, error)
	CountFollowing(ctx context.Context, accountID uuid.UUID) (int64, error)
}

var (
	_ FollowGraph = (*FollowRepository)(nil)
	_ FollowGraph = (*Neo4jFollowRepository)(nil)
)

// OpenFollowGraph returns the backend named by graph.driver and a func that releases it.
func OpenFollowGraph(ctx context.Context, cfg *config.Config, db *Database, log *logger.Logger) (FollowGraph, func(), error) {
	if cfg.Graph.Driver != "neo4j" {
		return NewFollowRepository(db.DB), func() {}, nil
	}

	driver, err := ConnectNeo4j(ctx, &cfg.Neo4j, log)
	if err != nil {
		return nil, nil, err
	}
	closeDriver := func() { _ = driver.Close(context.Background()) }

	repo := NewNeo4jFollowRepository(driver)
	if err := repo.EnsureSchema(ctx); err != nil {
		closeDriver()
		return nil, nil, err
	}
	log.WithField("uri", cfg.Neo4j.URI).Info("Using Neo4j follow graph")
	return repo, closeDriver, nil
}
