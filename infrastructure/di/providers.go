package di

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"github.com/channl/dynamodb-relay-graph-sub000/application/resolvers"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/config"
	ddb "github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb/batch"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/schema"
	"github.com/channl/dynamodb-relay-graph-sub000/interfaces/http/rest"
	"github.com/channl/dynamodb-relay-graph-sub000/pkg/auth"
	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
	"github.com/channl/dynamodb-relay-graph-sub000/pkg/globalid"
	"github.com/channl/dynamodb-relay-graph-sub000/pkg/observability"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		zcfg.Level = level
	}

	return zcfg.Build()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	})
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideSchema loads the table schema
func ProvideSchema(cfg *config.Config, logger *zap.Logger) (*schema.Config, error) {
	s, err := schema.Load(cfg.SchemaPath)
	if err != nil {
		return nil, err
	}
	logger.Info("Schema loaded",
		zap.String("path", cfg.SchemaPath),
		zap.Int("tables", len(s.Tables)),
	)
	return s, nil
}

// ProvideTracer creates the X-Ray tracer
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	name := cfg.LambdaFunctionName
	if name == "" {
		name = "relay-graph"
	}
	return observability.NewTracer(name, cfg.EnableTracing)
}

// ProvidePrometheusObserver creates the Prometheus observer, or nil when
// metrics are disabled
func ProvidePrometheusObserver(cfg *config.Config) *observability.PrometheusObserver {
	if !cfg.EnableMetrics {
		return nil
	}
	return observability.NewPrometheusObserver(cfg.MetricsNamespace)
}

// ProvideCloudWatchObserver creates the CloudWatch observer, or nil when
// CloudWatch publishing is disabled
func ProvideCloudWatchObserver(client *awscloudwatch.Client, cfg *config.Config, logger *zap.Logger) *observability.CloudWatchObserver {
	if !cfg.EnableCloudWatch {
		return nil
	}
	namespace := fmt.Sprintf("%s/%s", cfg.MetricsNamespace, cfg.Environment)
	return observability.NewCloudWatchObserver(namespace, client, logger)
}

// ProvideObserver combines the enabled observers. Store timings and batch
// warnings are always logged.
func ProvideObserver(
	logger *zap.Logger,
	prom *observability.PrometheusObserver,
	cw *observability.CloudWatchObserver,
) observability.Observer {
	observers := []observability.Observer{observability.NewLoggingObserver(logger)}
	if prom != nil {
		observers = append(observers, prom)
	}
	if cw != nil {
		observers = append(observers, cw)
	}
	return observability.NewMultiObserver(observers...)
}

// ProvideStoreClient decorates the DynamoDB client with the circuit breaker
// and instrumentation
func ProvideStoreClient(
	client *awsdynamodb.Client,
	observer observability.Observer,
	tracer *observability.Tracer,
	cfg *config.Config,
	logger *zap.Logger,
) ddb.Client {
	return decorateStoreClient(client, observer, tracer, cfg, logger)
}

func decorateStoreClient(
	client ddb.Client,
	observer observability.Observer,
	tracer *observability.Tracer,
	cfg *config.Config,
	logger *zap.Logger,
) ddb.Client {
	if cfg.EnableCircuitBreaker {
		client = ddb.NewCircuitBreakerClient(client, ddb.DefaultCircuitBreakerConfig("dynamodb"), logger)
	}
	return ddb.NewInstrumentedClient(client, observer, tracer, logger)
}

// ProvideBatchOrchestrator creates the batch orchestrator
func ProvideBatchOrchestrator(
	client ddb.Client,
	cfg *config.Config,
	observer observability.Observer,
	logger *zap.Logger,
) *batch.Orchestrator {
	return batch.NewOrchestrator(client, batch.Config{
		InitialDelay:   cfg.BatchInitialDelay,
		Timeout:        cfg.BatchTimeout,
		MaxConcurrency: cfg.BatchMaxConcurrency,
	}, observer, logger)
}

// ProvideIdentifierCodec returns the global id codec
func ProvideIdentifierCodec() globalid.IdentifierCodec {
	return globalid.New()
}

// ProvideErrorHandler creates the HTTP error handler
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *apperrors.ErrorHandler {
	return apperrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideJWTValidator creates the token validator, or nil when authentication
// is disabled
func ProvideJWTValidator(cfg *config.Config) (*auth.JWTValidator, error) {
	if !cfg.EnableAuth {
		return nil, nil
	}
	return auth.NewJWTValidator(auth.JWTConfig{
		SecretKey: cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
	})
}

// ProvideRouter creates the HTTP router
func ProvideRouter(
	graph *resolvers.Graph,
	errs *apperrors.ErrorHandler,
	validator *auth.JWTValidator,
	prom *observability.PrometheusObserver,
	cfg *config.Config,
	logger *zap.Logger,
) *rest.Router {
	var opts []rest.Option
	if validator != nil {
		opts = append(opts, rest.WithAuth(validator))
	}
	if prom != nil {
		opts = append(opts, rest.WithMetrics(prom.Handler()))
	}
	if cfg.EnableCORS {
		opts = append(opts, rest.WithCORS())
	}
	return rest.NewRouter(graph, errs, logger, opts...)
}

// ProvideHTTPHandler builds the HTTP handler from the router
func ProvideHTTPHandler(router *rest.Router) http.Handler {
	return router.Setup()
}
