package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feed-system/photo-feed/internal/config"
	"github.com/feed-system/photo-feed/pkg/logger"
	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const relFollows = "FOLLOWS"

// neo4jSchema must run before the first MERGE. Without the unique constraint
// concurrent MERGEs can create duplicate Account nodes and parallel edges.
var neo4jSchema = []string{
	`CREATE CONSTRAINT account_id IF NOT EXISTS FOR (a:Account) REQUIRE a.id IS UNIQUE`,
}

// Neo4jFollowRepository keeps the follow graph in Neo4j as (:Account)-[:FOLLOWS]->(:Account).
type Neo4jFollowRepository struct {
	driver neo4j.DriverWithContext
}

// ConnectNeo4j opens a driver and waits for the server to become reachable.
func ConnectNeo4j(ctx context.Context, cfg *config.Neo4jConfig, log *logger.Logger) (neo4j.DriverWithContext, error) {
	const maxRetries = 5
	retryDelay := 3 * time.Second

	var lastErr error
	for i := 1; i <= maxRetries; i++ {
		drv, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
		if err != nil {
			lastErr = err
		} else {
			verifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = drv.VerifyConnectivity(verifyCtx)
			cancel()
			if err == nil {
				return drv, nil
			}
			lastErr = err
			_ = drv.Close(ctx)
		}

		log.WithError(lastErr).WithField("attempt", i).Warn("Neo4j not reachable")
		if i < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return nil, fmt.Errorf("could not connect to neo4j: %w", lastErr)
}

func NewNeo4jFollowRepository(driver neo4j.DriverWithContext) *Neo4jFollowRepository {
	return &Neo4jFollowRepository{driver: driver}
}

// EnsureSchema creates the Account id constraint. It is safe to run on every start.
func (r *Neo4jFollowRepository) EnsureSchema(ctx context.Context) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	for _, stmt := range neo4jSchema {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			return fmt.Errorf("failed to apply neo4j schema: %w", err)
		}
		if _, err := res.Consume(ctx); err != nil {
			return fmt.Errorf("failed to apply neo4j schema: %w", err)
		}
	}
	return nil
}

func (r *Neo4jFollowRepository) Create(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	created, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		q := `
		MERGE (a:Account {id:$from})
		MERGE (b:Account {id:$to})
		WITH a, b, EXISTS { (a)-[:` + relFollows + `]->(b) } AS existed
		MERGE (a)-[r:` + relFollows + `]->(b)
		ON CREATE SET r.created_at = timestamp()
		RETURN NOT existed`
		res, err := tx.Run(ctx, q, map[string]any{"from": followerID.String(), "to": followeeID.String()})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			return res.Record().Values[0], nil
		}
		return nil, errors.New("no result")
	})
	if err != nil {
		return false, fmt.Errorf("failed to create follow: %w", err)
	}
	isNew, ok := created.(bool)
	if !ok {
		return false, errors.New("invalid data format")
	}
	return isNew, nil
}

func (r *Neo4jFollowRepository) Delete(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	removed, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		q := `MATCH (:Account {id:$from})-[r:` + relFollows + `]->(:Account {id:$to}) DELETE r RETURN count(r)`
		res, err := tx.Run(ctx, q, map[string]any{"from": followerID.String(), "to": followeeID.String()})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			return res.Record().Values[0], nil
		}
		return int64(0), nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete follow: %w", err)
	}
	n, _ := removed.(int64)
	return n > 0, nil
}

func (r *Neo4jFollowRepository) Exists(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	n, err := r.count(ctx,
		`MATCH (:Account {id:$from})-[r:`+relFollows+`]->(:Account {id:$to}) RETURN count(r)`,
		map[string]any{"from": followerID.String(), "to": followeeID.String()})
	if err != nil {
		return false, fmt.Errorf("failed to check follow status: %w", err)
	}
	return n > 0, nil
}

func (r *Neo4jFollowRepository) ListFollowers(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := r.listIDs(ctx,
		`MATCH (f:Account)-[r:`+relFollows+`]->(:Account {id:$id}) RETURN f.id ORDER BY r.created_at`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list followers: %w", err)
	}
	return ids, nil
}

func (r *Neo4jFollowRepository) ListFollowing(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := r.listIDs(ctx,
		`MATCH (:Account {id:$id})-[r:`+relFollows+`]->(f:Account) RETURN f.id ORDER BY r.created_at`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list following: %w", err)
	}
	return ids, nil
}

func (r *Neo4jFollowRepository) CountFollowers(ctx context.Context, accountID uuid.UUID) (int64, error) {
	n, err := r.count(ctx,
		`MATCH (:Account)-[r:`+relFollows+`]->(:Account {id:$id}) RETURN count(r)`,
		map[string]any{"id": accountID.String()})
	if err != nil {
		return 0, fmt.Errorf("failed to count followers: %w", err)
	}
	return n, nil
}

func (r *Neo4jFollowRepository) CountFollowing(ctx context.Context, accountID uuid.UUID) (int64, error) {
	n, err := r.count(ctx,
		`MATCH (:Account {id:$id})-[r:`+relFollows+`]->(:Account) RETURN count(r)`,
		map[string]any{"id": accountID.String()})
	if err != nil {
		return 0, fmt.Errorf("failed to count following: %w", err)
	}
	return n, nil
}

func (r *Neo4jFollowRepository) listIDs(ctx context.Context, q string, accountID uuid.UUID) ([]uuid.UUID, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	data, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q, map[string]any{"id": accountID.String()})
		if err != nil {
			return nil, err
		}
		ids := make([]uuid.UUID, 0)
		for res.Next(ctx) {
			raw, ok := res.Record().Values[0].(string)
			if !ok {
				return nil, errors.New("invalid data format")
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid account id %q: %w", raw, err)
			}
			ids = append(ids, id)
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return data.([]uuid.UUID), nil
}

func (r *Neo4jFollowRepository) count(ctx context.Context, q string, params map[string]any) (int64, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	data, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q, params)
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			return res.Record().Values[0], nil
		}
		return int64(0), res.Err()
	})
	if err != nil {
		return 0, err
	}
	n, ok := data.(int64)
	if !ok {
		return 0, errors.New("invalid data format")
	}
	return n, nil
}
