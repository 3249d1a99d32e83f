// Package graphstore is a typed wrapper over a property-graph database: a
// thin session/transaction client plus a repository of domain node and
// relation operations built on top of it. Every query runs in a
// short-lived session off the driver's pool; writes run in managed
// transactions with the driver's bounded retry.
package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"
)

// WriteSummary reports the mutation counters for a write transaction.
type WriteSummary struct {
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	RelationshipsDeleted int
	PropertiesSet        int
}

// Client wraps a pooled Neo4j driver, exposing read (execute_query) and
// write (execute_write) primitives. Every call opens a short-lived session
// and closes it before returning; the driver's own connection pool is what
// is actually held open across calls.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	log      *logrus.Logger
}

// NewClient dials uri and verifies connectivity before returning. Writes
// retry transient errors (deadlocks, leader switches) for up to
// maxTransactionRetry before giving up, so a write's wall-clock budget is
// bounded.
func NewClient(uri, username, password, database string, maxTransactionRetry time.Duration, log *logrus.Logger) (*Client, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if maxTransactionRetry <= 0 {
		maxTransactionRetry = 30 * time.Second
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""), func(c *neo4j.Config) {
		c.MaxTransactionRetryTime = maxTransactionRetry
	})
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("connect to graph store: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	return &Client{driver: driver, database: database, log: log}, nil
}

func (c *Client) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: c.database})
}

// ExecuteQuery runs cypher as a read transaction and returns each result row
// as a field-name-to-value map.
func (c *Client) ExecuteQuery(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		var rows []map[string]any
		for result.Next(ctx) {
			record := result.Record()
			row := make(map[string]any, len(record.Keys))
			for _, k := range record.Keys {
				v, _ := record.Get(k)
				row[k] = v
			}
			rows = append(rows, row)
		}
		return rows, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graph query: %w", err)
	}
	rows, _ := res.([]map[string]any)
	return rows, nil
}

// ExecuteWrite runs cypher inside a single managed write transaction,
// retried automatically by the driver on transient errors, and returns
// mutation counters.
func (c *Client) ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (WriteSummary, error) {
	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	res, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return WriteSummary{}, err
		}
		summary, err := result.Consume(ctx)
		if err != nil {
			return WriteSummary{}, err
		}
		counters := summary.Counters()
		return WriteSummary{
			NodesCreated:         counters.NodesCreated(),
			NodesDeleted:         counters.NodesDeleted(),
			RelationshipsCreated: counters.RelationshipsCreated(),
			RelationshipsDeleted: counters.RelationshipsDeleted(),
			PropertiesSet:        counters.PropertiesSet(),
		}, nil
	})
	if err != nil {
		return WriteSummary{}, fmt.Errorf("graph write: %w", err)
	}
	ws, _ := res.(WriteSummary)
	return ws, nil
}

// VerifyConnectivity reports whether the graph store is reachable, used by
// the retriever's availability contract (return empty, not error, when the
// graph is down) to decide whether to even attempt a lookup.
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// Close releases the underlying driver and its connection pool.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}
