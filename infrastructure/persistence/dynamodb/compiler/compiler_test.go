package compiler

import (
	"bytes"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/entities"
	vo "github.com/channl/dynamodb-relay-graph-sub000/domain/core/valueobjects"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb/codec"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/schema"
	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
)

const testSchema = `
tables:
  - name: Posts
    type: Post
    attributeDefinitions:
      - {name: id, type: B, width: 4}
      - {name: authorID, type: S}
      - {name: createdAt, type: N}
      - {name: slug, type: S}
    keySchema:
      - {name: id, keyType: HASH}
    localSecondaryIndexes:
      - name: IdCreatedAtIndex
        keySchema:
          - {name: id, keyType: HASH}
          - {name: createdAt, keyType: RANGE}
    globalSecondaryIndexes:
      - name: AuthorCreatedAtIndex
        keySchema:
          - {name: authorID, keyType: HASH}
          - {name: createdAt, keyType: RANGE}
      - name: AuthorSlugIndex
        keySchema:
          - {name: authorID, keyType: HASH}
          - {name: slug, keyType: RANGE}
      - name: SlugIndex
        keySchema:
          - {name: slug, keyType: HASH}
  - name: Follows
    attributeDefinitions:
      - {name: outID, type: B}
      - {name: inID, type: B}
    keySchema:
      - {name: outID, keyType: HASH}
      - {name: inID, keyType: RANGE}
    globalSecondaryIndexes:
      - name: InIndex
        keySchema:
          - {name: inID, keyType: HASH}
          - {name: outID, keyType: RANGE}
`

func loadTable(t *testing.T, name string) *schema.Table {
	t.Helper()
	cfg, err := schema.Parse([]byte(testSchema))
	require.NoError(t, err)
	table, ok := cfg.Table(name)
	require.True(t, ok)
	return table
}

func TestSelectIndex(t *testing.T) {
	posts := loadTable(t, "Posts")
	follows := loadTable(t, "Follows")

	tests := []struct {
		name  string
		table *schema.Table
		expr  vo.Expression
		args  vo.ConnectionArgs
		want  string
	}{
		{"primary key", posts, vo.Expression{"type": "Post", "id": []byte{1}}, vo.First(1), ""},
		{"order selects local index", posts, vo.Expression{"type": "Post", "id": []byte{1}}, vo.First(1).OrderBy("createdAt", false), "IdCreatedAtIndex"},
		{"first matching global index", posts, vo.Expression{"type": "Post", "authorID": "a"}, vo.First(1), "AuthorCreatedAtIndex"},
		{"range on sort key", posts, vo.Expression{"type": "Post", "authorID": "a", "slug": vo.BeginsWith("go")}, vo.First(1), "AuthorSlugIndex"},
		{"equality on sort key", posts, vo.Expression{"type": "Post", "authorID": "a", "slug": "x"}, vo.First(1), "AuthorSlugIndex"},
		{"hash only global index", posts, vo.Expression{"type": "Post", "slug": "x"}, vo.First(1), "SlugIndex"},
		{"edge out", follows, vo.Expression{"type": "Follows", "outID": []byte{1}}, vo.First(1), ""},
		{"edge in", follows, vo.Expression{"type": "Follows", "inID": []byte{1}}, vo.First(1), "InIndex"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, err := SelectIndex(tt.expr, tt.args, tt.table)
			require.NoError(t, err)
			assert.Equal(t, tt.want, index.Name)

			again, err := SelectIndex(tt.expr, tt.args, tt.table)
			require.NoError(t, err)
			assert.Equal(t, index, again)
		})
	}
}

func TestSelectIndex_NotFound(t *testing.T) {
	posts := loadTable(t, "Posts")

	tests := []struct {
		name string
		expr vo.Expression
		args vo.ConnectionArgs
	}{
		{"unknown attribute", vo.Expression{"type": "Post", "title": "x"}, vo.First(1)},
		{"range without hash", vo.Expression{"type": "Post", "createdAt": vo.After(1)}, vo.First(1)},
		{"range on hash key", vo.Expression{"type": "Post", "id": vo.After([]byte{1})}, vo.First(1)},
		{"order not a sort key", vo.Expression{"type": "Post", "slug": "x"}, vo.First(1).OrderBy("createdAt", false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SelectIndex(tt.expr, tt.args, posts)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.CodeIndexNotFound))
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeCompile))
		})
	}
}

func TestBuildKeyConditionExpression(t *testing.T) {
	got, err := BuildKeyConditionExpression(vo.Expression{
		"type":      "Post",
		"authorID":  "a",
		"createdAt": vo.After(5),
	})
	require.NoError(t, err)
	assert.Equal(t, "#resauthorID = :eqauthorID AND #rescreatedAt > :aftercreatedAt", got)

	got, err = BuildKeyConditionExpression(vo.Expression{"type": "Post", "createdAt": vo.Before(nil)})
	require.NoError(t, err)
	assert.Equal(t, "#rescreatedAt < :beforecreatedAt", got)

	got, err = BuildKeyConditionExpression(vo.Expression{"type": "Post", "slug": vo.BeginsWith("go")})
	require.NoError(t, err)
	assert.Equal(t, "begins_with(#resslug, :bwslug)", got)

	got, err = BuildKeyConditionExpression(vo.Expression{"type": "Post"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBuildKeyConditionExpression_UnsupportedRange(t *testing.T) {
	tests := []struct {
		name string
		r    vo.Range
	}{
		{"after and before", vo.After(5).WithBefore(10)},
		{"begins with and after", vo.BeginsWith("a").WithAfter("b")},
		{"empty", vo.Range{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildKeyConditionExpression(vo.Expression{"type": "Post", "id": tt.r})
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.CodeUnsupportedRange))
		})
	}
}

func TestBuildAttributeValues(t *testing.T) {
	posts := loadTable(t, "Posts")

	values, err := BuildAttributeValues(vo.Expression{
		"type":      "Post",
		"authorID":  "a",
		"createdAt": vo.After(1700),
		"slug":      vo.BeginsWith("go"),
	}, posts)
	require.NoError(t, err)
	assert.Equal(t, map[string]types.AttributeValue{
		":eqauthorID":     &types.AttributeValueMemberS{Value: "a"},
		":aftercreatedAt": &types.AttributeValueMemberN{Value: "1700"},
		":bwslug":         &types.AttributeValueMemberS{Value: "go"},
	}, values)
}

func TestBuildAttributeValues_Sentinels(t *testing.T) {
	posts := loadTable(t, "Posts")

	tests := []struct {
		name string
		attr string
		r    vo.Range
		key  string
		want types.AttributeValue
	}{
		{"string min", "slug", vo.After(nil), ":afterslug", &types.AttributeValueMemberS{Value: MinString}},
		{"string max", "slug", vo.Before(nil), ":beforeslug", &types.AttributeValueMemberS{Value: MaxString}},
		{"number min", "createdAt", vo.After(nil), ":aftercreatedAt", &types.AttributeValueMemberN{Value: MinNumber}},
		{"number max", "createdAt", vo.Before(nil), ":beforecreatedAt", &types.AttributeValueMemberN{Value: MaxNumber}},
		{"binary min", "id", vo.After(nil), ":afterid", &types.AttributeValueMemberB{Value: []byte{0, 0, 0, 0}}},
		{"binary max", "id", vo.Before(nil), ":beforeid", &types.AttributeValueMemberB{Value: bytes.Repeat([]byte{0xff}, 4)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := BuildAttributeValues(vo.Expression{"type": "Post", tt.attr: tt.r}, posts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, values[tt.key])
		})
	}
}

func TestBuildAttributeValues_CoercionFailure(t *testing.T) {
	posts := loadTable(t, "Posts")
	_, err := BuildAttributeValues(vo.Expression{"type": "Post", "createdAt": "yesterday"}, posts)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnsupportedType))
}

func TestBuildProjection(t *testing.T) {
	projection, names := BuildProjection(
		vo.Expression{"type": "Post", "authorID": "a", "slug": vo.BeginsWith("g")},
		vo.First(1).OrderBy("createdAt", true),
		"id", "authorID",
	)
	assert.Equal(t, "#resauthorID, #rescreatedAt, #resid, #resslug", projection)
	assert.Equal(t, map[string]string{
		"#resauthorID":  "authorID",
		"#rescreatedAt": "createdAt",
		"#resid":        "id",
		"#resslug":      "slug",
	}, names)
}

func TestBuildQuery(t *testing.T) {
	posts := loadTable(t, "Posts")
	cursor, err := codec.ToCursor(entities.Model{"type": "Post", "id": []byte{1, 2, 3, 4}, "authorID": "a", "createdAt": 10}, "authorID", "createdAt")
	require.NoError(t, err)

	input, index, err := BuildQuery(posts,
		vo.Expression{"type": "Post", "authorID": "a"},
		vo.Last(5).WithBefore(cursor),
	)
	require.NoError(t, err)

	assert.Equal(t, "AuthorCreatedAtIndex", index.Name)
	assert.Equal(t, "Posts", aws.ToString(input.TableName))
	assert.Equal(t, "AuthorCreatedAtIndex", aws.ToString(input.IndexName))
	assert.Equal(t, "#resauthorID = :eqauthorID", aws.ToString(input.KeyConditionExpression))
	assert.Equal(t, "#resauthorID, #rescreatedAt, #resid", aws.ToString(input.ProjectionExpression))
	assert.False(t, aws.ToBool(input.ScanIndexForward))
	assert.Equal(t, int32(5), aws.ToInt32(input.Limit))
	assert.Len(t, input.ExclusiveStartKey, 3)
}

func TestBuildQuery_PrimaryHasNoIndexName(t *testing.T) {
	follows := loadTable(t, "Follows")
	input, index, err := BuildQuery(follows, vo.Expression{"type": "Follows", "outID": []byte{1}}, vo.First(2).OrderBy("inID", true))
	require.NoError(t, err)
	assert.True(t, index.IsPrimary())
	assert.Nil(t, input.IndexName)
	assert.False(t, aws.ToBool(input.ScanIndexForward))
}

func TestBuildQuery_InvalidCursor(t *testing.T) {
	follows := loadTable(t, "Follows")
	_, _, err := BuildQuery(follows, vo.Expression{"type": "Follows", "outID": []byte{1}}, vo.First(2).WithAfter("!!"))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidIdentifier))
}

func TestBuildScan(t *testing.T) {
	follows := loadTable(t, "Follows")
	input, err := BuildScan(follows, vo.First(3))
	require.NoError(t, err)
	assert.Equal(t, "Follows", aws.ToString(input.TableName))
	assert.Equal(t, "#resinID, #resoutID", aws.ToString(input.ProjectionExpression))
	assert.Equal(t, int32(3), aws.ToInt32(input.Limit))
	assert.Nil(t, input.ExclusiveStartKey)
}
