package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/channl/dynamodb-relay-graph-sub000/application/resolvers"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/config"
	ddb "github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb/dynamodbtest"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/schema"
	"github.com/channl/dynamodb-relay-graph-sub000/pkg/observability"
)

const testSchema = `
tables:
  - name: Users
    type: User
    attributeDefinitions:
      - {name: id, type: S}
    keySchema:
      - {name: id, keyType: HASH}
`

func testConfig() *config.Config {
	return &config.Config{
		Environment:          "development",
		LogLevel:             "info",
		MetricsNamespace:     "RelayGraphTest",
		BatchTimeout:         1,
		BatchMaxConcurrency:  1,
		EnableCircuitBreaker: true,
	}
}

func TestProvideLogger(t *testing.T) {
	cfg := testConfig()
	logger, err := ProvideLogger(cfg)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))

	cfg.LogLevel = "loud"
	_, err = ProvideLogger(cfg)
	assert.ErrorContains(t, err, "LOG_LEVEL")
}

func TestProvideSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSchema), 0o600))

	cfg := testConfig()
	cfg.SchemaPath = path
	s, err := ProvideSchema(cfg, zap.NewNop())
	require.NoError(t, err)
	_, ok := s.TableForType("User")
	assert.True(t, ok)

	cfg.SchemaPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = ProvideSchema(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestProvideObserver(t *testing.T) {
	logger := zap.NewNop()

	only := ProvideObserver(logger, nil, nil)
	assert.IsType(t, &observability.LoggingObserver{}, only)

	prom := observability.NewPrometheusObserver("test")
	multi := ProvideObserver(logger, prom, nil)
	require.IsType(t, observability.MultiObserver{}, multi)
	assert.Len(t, multi.(observability.MultiObserver), 2)
}

func TestOptionalProviders_Disabled(t *testing.T) {
	cfg := testConfig()

	assert.Nil(t, ProvidePrometheusObserver(cfg))
	assert.Nil(t, ProvideCloudWatchObserver(nil, cfg, zap.NewNop()))
	validator, err := ProvideJWTValidator(cfg)
	require.NoError(t, err)
	assert.Nil(t, validator)
	assert.False(t, ProvideTracer(cfg).Enabled())
}

func TestProvideJWTValidator_Enabled(t *testing.T) {
	cfg := testConfig()
	cfg.EnableAuth = true

	_, err := ProvideJWTValidator(cfg)
	assert.Error(t, err)

	cfg.JWTSecret = "secret"
	validator, err := ProvideJWTValidator(cfg)
	require.NoError(t, err)
	assert.NotNil(t, validator)
}

func TestDecorateStoreClient(t *testing.T) {
	s, err := schema.Parse([]byte(testSchema))
	require.NoError(t, err)
	store := dynamodbtest.NewStore(s)
	cfg := testConfig()

	client := decorateStoreClient(store, nil, nil, cfg, zap.NewNop())
	assert.IsType(t, &ddb.InstrumentedClient{}, client)

	_, err = client.BatchWriteItem(context.Background(), &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{
			"Users": {{PutRequest: &types.PutRequest{Item: map[string]types.AttributeValue{
				"id": &types.AttributeValueMemberS{Value: "u1"},
			}}}},
		},
	})
	require.NoError(t, err)
	out, err := client.GetItem(context.Background(), &dynamodb.GetItemInput{
		TableName: aws.String("Users"),
		Key:       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: "u1"}},
	})
	require.NoError(t, err)
	assert.NotNil(t, out.Item)
}

func TestProvideRouter_ServesMetrics(t *testing.T) {
	s, err := schema.Parse([]byte(testSchema))
	require.NoError(t, err)
	cfg := testConfig()
	cfg.EnableMetrics = true
	logger := zap.NewNop()

	store := dynamodbtest.NewStore(s)
	prom := ProvidePrometheusObserver(cfg)
	observer := ProvideObserver(logger, prom, nil)
	client := decorateStoreClient(store, observer, nil, cfg, logger)
	orchestrator := ProvideBatchOrchestrator(client, cfg, observer, logger)
	engine := resolvers.NewEngine(s, client, orchestrator, observer, logger)
	graph := resolvers.NewGraph(engine, ProvideIdentifierCodec(), logger)

	router := ProvideRouter(graph, ProvideErrorHandler(cfg, logger), nil, prom, cfg, logger)
	handler := ProvideHTTPHandler(router)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestContainer_ShutdownWithoutCloudWatch(t *testing.T) {
	c := &Container{Config: testConfig(), Logger: zap.NewNop()}
	c.Start(context.Background())
	assert.NoError(t, c.Shutdown(context.Background()))
}
