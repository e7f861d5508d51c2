package di

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/channl/dynamodb-relay-graph-sub000/application/resolvers"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/config"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/schema"
	"github.com/channl/dynamodb-relay-graph-sub000/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Schema     *schema.Config
	Observer   observability.Observer
	CloudWatch *observability.CloudWatchObserver
	Graph      *resolvers.Graph
	Handler    http.Handler
}

// Start runs background work, currently the CloudWatch flush loop, until ctx
// is done.
func (c *Container) Start(ctx context.Context) {
	if c.CloudWatch == nil {
		return
	}
	interval := c.Config.CloudWatchInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go c.CloudWatch.Run(ctx, interval)
}

// Shutdown flushes buffered metrics and logs.
func (c *Container) Shutdown(ctx context.Context) error {
	var err error
	if c.CloudWatch != nil {
		err = c.CloudWatch.Flush(ctx)
	}
	_ = c.Logger.Sync()
	return err
}
