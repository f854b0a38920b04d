package sourcegraph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/claimlens/backend/pkg/circuitbreaker"
	"github.com/claimlens/backend/pkg/logger"
	"github.com/claimlens/backend/pkg/retry"
)

// Client reads publisher trust ranks from the source graph. Ranks are
// maintained out of band; verification only ever reads them.
type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
	logger      *zap.Logger
}

type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}

	log := logger.GetLogger()

	return &Client{
		driver:   driver,
		database: cfg.Database,
		cb: circuitbreaker.New("sourcegraph", circuitbreaker.Config{
			MaxRequests:      2,
			Timeout:          30 * time.Second,
			FailureThreshold: 3,
			SuccessThreshold: 2,
			Logger:           log,
		}),
		retryConfig: retry.Config{
			MaxAttempts:  2,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
			Logger:       log,
		},
		logger: log,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// TrustRank looks up the rank for a source. found is false when the source is
// not in the graph or has no rank.
func (c *Client) TrustRank(ctx context.Context, sourceID string) (int, bool, error) {
	var rank int64
	var found bool

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{
				DatabaseName: c.database,
				AccessMode:   neo4j.AccessModeRead,
			})
			defer session.Close(ctx)

			result, err := session.Run(ctx,
				"MATCH (s:Source {id: $id}) RETURN s.trust_rank AS rank",
				map[string]any{"id": sourceID},
			)
			if err != nil {
				return err
			}

			record, err := result.Single(ctx)
			if err != nil {
				// No row means the source is unranked, not an outage.
				found = false
				return nil
			}

			value, ok := record.Get("rank")
			if !ok || value == nil {
				found = false
				return nil
			}

			r, ok := value.(int64)
			if !ok {
				return fmt.Errorf("unexpected trust_rank type %T", value)
			}

			rank = r
			found = true
			return nil
		})
	})
	if err != nil {
		return 0, false, err
	}

	return int(rank), found, nil
}
