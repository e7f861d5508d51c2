package dynamodbtest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/schema"
)

const testSchema = `
tables:
  - name: Posts
    type: Post
    attributeDefinitions:
      - {name: id, type: S}
      - {name: authorID, type: S}
      - {name: createdAt, type: N}
    keySchema:
      - {name: id, keyType: HASH}
    globalSecondaryIndexes:
      - name: AuthorIndex
        keySchema:
          - {name: authorID, keyType: HASH}
          - {name: createdAt, keyType: RANGE}
`

func newStore(t *testing.T) *Store {
	t.Helper()
	cfg, err := schema.Parse([]byte(testSchema))
	require.NoError(t, err)
	return NewStore(cfg)
}

func post(id, author string, createdAt int) Item {
	return Item{
		"id":        &types.AttributeValueMemberS{Value: id},
		"authorID":  &types.AttributeValueMemberS{Value: author},
		"createdAt": &types.AttributeValueMemberN{Value: fmt.Sprint(createdAt)},
		"title":     &types.AttributeValueMemberS{Value: "title " + id},
	}
}

func ids(items []map[string]types.AttributeValue) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item["id"].(*types.AttributeValueMemberS).Value)
	}
	return out
}

func authorQuery(limit int32, forward bool, start Item) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:                aws.String("Posts"),
		IndexName:                aws.String("AuthorIndex"),
		KeyConditionExpression:   aws.String("#resauthorID = :eqauthorID"),
		ExpressionAttributeNames: map[string]string{"#resauthorID": "authorID", "#rescreatedAt": "createdAt", "#resid": "id"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":eqauthorID": &types.AttributeValueMemberS{Value: "ann"},
		},
		ProjectionExpression: aws.String("#resauthorID, #rescreatedAt, #resid"),
		ScanIndexForward:     aws.Bool(forward),
		Limit:                aws.Int32(limit),
		ExclusiveStartKey:    start,
	}
}

func TestStore_QueryOrdersAndPages(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Seed("Posts",
		post("p1", "ann", 30), post("p2", "ann", 10), post("p3", "bob", 20), post("p4", "ann", 20),
	))

	out, err := s.Query(ctx, authorQuery(2, true, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p4"}, ids(out.Items))
	assert.NotContains(t, out.Items[0], "title")
	require.NotNil(t, out.LastEvaluatedKey)

	out, err = s.Query(ctx, authorQuery(2, true, out.LastEvaluatedKey))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids(out.Items))
	assert.Nil(t, out.LastEvaluatedKey)

	out, err = s.Query(ctx, authorQuery(2, false, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p4"}, ids(out.Items))
}

func TestStore_LimitReachedReportsLastKey(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Seed("Posts", post("p1", "ann", 1)))

	out, err := s.Query(context.Background(), authorQuery(1, true, nil))
	require.NoError(t, err)
	assert.Len(t, out.Items, 1)
	assert.NotNil(t, out.LastEvaluatedKey)

	out, err = s.Query(context.Background(), authorQuery(1, true, out.LastEvaluatedKey))
	require.NoError(t, err)
	assert.Empty(t, out.Items)
	assert.Nil(t, out.LastEvaluatedKey)
}

func TestStore_QueryRangeConditions(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Seed("Posts", post("p1", "ann", 10), post("p2", "ann", 20), post("p3", "ann", 30)))

	in := authorQuery(10, true, nil)
	in.KeyConditionExpression = aws.String("#resauthorID = :eqauthorID AND #rescreatedAt > :aftercreatedAt")
	in.ExpressionAttributeValues[":aftercreatedAt"] = &types.AttributeValueMemberN{Value: "10"}

	out, err := s.Query(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p3"}, ids(out.Items))
}

func TestStore_QueryValidation(t *testing.T) {
	s := newStore(t)

	in := authorQuery(1, true, nil)
	in.KeyConditionExpression = aws.String("#rescreatedAt > :eqauthorID")
	_, err := s.Query(context.Background(), in)

	var apiErr smithy.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "ValidationException", apiErr.ErrorCode())

	in = authorQuery(1, true, nil)
	in.IndexName = aws.String("Missing")
	_, err = s.Query(context.Background(), in)
	assert.Error(t, err)
}

func TestStore_ScanPagesInKeyOrder(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Seed("Posts", post("c", "ann", 1), post("a", "ann", 2), post("b", "bob", 3)))

	var seen []string
	var start Item
	for {
		out, err := s.Scan(context.Background(), &dynamodb.ScanInput{
			TableName:         aws.String("Posts"),
			Limit:             aws.Int32(2),
			ExclusiveStartKey: start,
		})
		require.NoError(t, err)
		seen = append(seen, ids(out.Items)...)
		if out.LastEvaluatedKey == nil {
			break
		}
		start = out.LastEvaluatedKey
	}
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestStore_BatchLimitsAndUnprocessed(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	var writes []types.WriteRequest
	for i := 0; i < 26; i++ {
		writes = append(writes, types.WriteRequest{PutRequest: &types.PutRequest{Item: post(fmt.Sprintf("p%02d", i), "ann", i)}})
	}
	_, err := s.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: map[string][]types.WriteRequest{"Posts": writes}})
	assert.Error(t, err)

	s.LeaveUnprocessed(5)
	out, err := s.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: map[string][]types.WriteRequest{"Posts": writes[:25]}})
	require.NoError(t, err)
	assert.Len(t, out.UnprocessedItems["Posts"], 5)
	assert.Equal(t, 20, s.Len("Posts"))

	keys := []map[string]types.AttributeValue{
		{"id": &types.AttributeValueMemberS{Value: "p05"}},
		{"id": &types.AttributeValueMemberS{Value: "p06"}},
		{"id": &types.AttributeValueMemberS{Value: "missing"}},
	}
	s.LeaveUnprocessed(1)
	got, err := s.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: map[string]types.KeysAndAttributes{"Posts": {Keys: keys}}})
	require.NoError(t, err)
	assert.Len(t, got.UnprocessedKeys["Posts"].Keys, 1)
	assert.Equal(t, []string{"p06"}, ids(got.Responses["Posts"]))
}

func TestStore_FailNext(t *testing.T) {
	s := newStore(t)
	boom := errors.New("boom")
	s.FailNext(boom)

	_, err := s.GetItem(context.Background(), &dynamodb.GetItemInput{TableName: aws.String("Posts"), Key: Item{"id": &types.AttributeValueMemberS{Value: "x"}}})
	assert.Same(t, boom, err)

	out, err := s.GetItem(context.Background(), &dynamodb.GetItemInput{TableName: aws.String("Posts"), Key: Item{"id": &types.AttributeValueMemberS{Value: "x"}}})
	require.NoError(t, err)
	assert.Nil(t, out.Item)
	assert.Equal(t, 2, s.Calls("GetItem"))
}
