//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/channl/dynamodb-relay-graph-sub000/application/resolvers"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideCloudWatchClient,
	ProvideSchema,
	ProvideTracer,
	ProvidePrometheusObserver,
	ProvideCloudWatchObserver,
	ProvideObserver,
	ProvideStoreClient,
	ProvideBatchOrchestrator,
	ProvideIdentifierCodec,
	resolvers.NewEngine,
	resolvers.NewGraph,
	ProvideErrorHandler,
	ProvideJWTValidator,
	ProvideRouter,
	ProvideHTTPHandler,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
