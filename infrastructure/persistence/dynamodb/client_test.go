package dynamodb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

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

func newStore(t *testing.T) *dynamodbtest.Store {
	t.Helper()
	cfg, err := schema.Parse([]byte(testSchema))
	require.NoError(t, err)
	return dynamodbtest.NewStore(cfg)
}

type timing struct {
	operation string
	err       error
}

type recordingObserver struct {
	mu      sync.Mutex
	timings []timing
}

func (o *recordingObserver) Timing(_ context.Context, operation string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.timings = append(o.timings, timing{operation: operation, err: err})
}

func (o *recordingObserver) Warning(context.Context, string, ...zap.Field) {}

var _ observability.Observer = (*recordingObserver)(nil)

func userKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

func TestInstrumentedClient_ReportsCalls(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Seed("Users", userKey("u1")))

	rec := &recordingObserver{}
	core, logs := observer.New(zapcore.DebugLevel)
	client := NewInstrumentedClient(store, rec, observability.NewTracer("test", false), zap.New(core))

	boom := errors.New("boom")
	store.FailNext(nil, boom)

	// Act
	out, err := client.GetItem(ctx, &dynamodb.GetItemInput{TableName: aws.String("Users"), Key: userKey("u1")})
	require.NoError(t, err)
	_, failErr := client.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String("Users")})

	// Assert
	assert.NotNil(t, out.Item)
	assert.Same(t, boom, failErr)

	require.Len(t, rec.timings, 2)
	assert.Equal(t, timing{operation: "GetItem"}, rec.timings[0])
	assert.Equal(t, "Scan", rec.timings[1].operation)
	assert.Same(t, boom, rec.timings[1].err)

	failures := logs.FilterMessage("DynamoDB call failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, "Users", failures[0].ContextMap()["table"])
	assert.Equal(t, "Scan", failures[0].ContextMap()["operation"])
}

func TestInstrumentedClient_BatchTables(t *testing.T) {
	store := newStore(t)
	core, logs := observer.New(zapcore.DebugLevel)
	client := NewInstrumentedClient(store, nil, nil, zap.New(core))

	_, err := client.BatchWriteItem(context.Background(), &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{
			"Users": {{PutRequest: &types.PutRequest{Item: userKey("u1")}}},
		},
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("DynamoDB call completed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Users", entries[0].ContextMap()["table"])
	assert.Equal(t, 1, store.Len("Users"))
}

func TestCircuitBreakerClient_OpensAfterFailures(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := newStore(t)
	config := DefaultCircuitBreakerConfig("dynamodb")
	config.MinRequests = 2
	config.FailureThreshold = 0.5
	client := NewCircuitBreakerClient(store, config, zap.NewNop())

	store.FailNext(errors.New("unavailable"), errors.New("unavailable"))
	input := &dynamodb.GetItemInput{TableName: aws.String("Users"), Key: userKey("u1")}

	// Act
	_, err1 := client.GetItem(ctx, input)
	_, err2 := client.GetItem(ctx, input)
	_, err3 := client.GetItem(ctx, input)

	// Assert
	assert.Error(t, err1)
	assert.Error(t, err2)
	assert.ErrorIs(t, err3, gobreaker.ErrOpenState)
	assert.Equal(t, gobreaker.StateOpen, client.State())
	assert.Equal(t, 2, store.Calls("GetItem"))
}

func TestCircuitBreakerClient_CancellationIsNotAFailure(t *testing.T) {
	store := newStore(t)
	config := DefaultCircuitBreakerConfig("dynamodb")
	config.MinRequests = 1
	config.FailureThreshold = 0.1
	client := NewCircuitBreakerClient(store, config, zap.NewNop())

	store.FailNext(context.Canceled, context.Canceled)
	input := &dynamodb.GetItemInput{TableName: aws.String("Users"), Key: userKey("u1")}

	_, err := client.GetItem(context.Background(), input)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = client.GetItem(context.Background(), input)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, gobreaker.StateClosed, client.State())

	out, err := client.GetItem(context.Background(), input)
	require.NoError(t, err)
	assert.Nil(t, out.Item)
}
