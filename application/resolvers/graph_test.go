package resolvers

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/channl/dynamodb-relay-graph-sub000/application/queries"
	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/entities"
	vo "github.com/channl/dynamodb-relay-graph-sub000/domain/core/valueobjects"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb/batch"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb/dynamodbtest"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/schema"
	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
	"github.com/channl/dynamodb-relay-graph-sub000/pkg/globalid"
)

const testSchema = `
tables:
  - name: Users
    type: User
    attributeDefinitions:
      - {name: id, type: S}
    keySchema:
      - {name: id, keyType: HASH}
  - name: Posts
    type: Post
    attributeDefinitions:
      - {name: id, type: S}
      - {name: authorID, type: S}
      - {name: createdAt, type: N}
    keySchema:
      - {name: id, keyType: HASH}
    globalSecondaryIndexes:
      - name: AuthorCreatedAtIndex
        keySchema:
          - {name: authorID, keyType: HASH}
          - {name: createdAt, keyType: RANGE}
  - name: Follows
    type: Follow
    attributeDefinitions:
      - {name: outID, type: S}
      - {name: inID, type: S}
    keySchema:
      - {name: outID, keyType: HASH}
      - {name: inID, keyType: RANGE}
    globalSecondaryIndexes:
      - name: InIndex
        keySchema:
          - {name: inID, keyType: HASH}
          - {name: outID, keyType: RANGE}
`

func setupGraph(t *testing.T) (*Graph, *dynamodbtest.Store) {
	t.Helper()
	cfg, err := schema.Parse([]byte(testSchema))
	require.NoError(t, err)

	store := dynamodbtest.NewStore(cfg)
	logger := zap.NewNop()
	orchestrator := batch.NewOrchestrator(store, batch.DefaultConfig(), nil, logger)
	engine := NewEngine(cfg, store, orchestrator, nil, logger)
	return NewGraph(engine, globalid.New(), logger), store
}

func user(id string) entities.Model {
	m := entities.NewNode("User", id)
	m["name"] = "name " + id
	return m
}

func post(id, author string, createdAt int) entities.Model {
	m := entities.NewNode("Post", id)
	m["authorID"] = author
	m["createdAt"] = createdAt
	return m
}

func follow(out, in string) entities.Model {
	return entities.NewEdge("Follow", out, in)
}

func ids(conn *vo.Connection) []any {
	out := make([]any, 0, len(conn.Edges))
	for _, edge := range conn.Edges {
		if edge.Node == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, edge.Node.ID())
	}
	return out
}

func TestGraph_EmptyTable(t *testing.T) {
	// Arrange
	g, _ := setupGraph(t)
	q := queries.Node(vo.Expression{"type": "User"}, vo.First(2)).Query()

	// Act
	conn, err := g.ResolveConnection(context.Background(), q)

	// Assert
	require.NoError(t, err)
	assert.Empty(t, conn.Edges)
	assert.Nil(t, conn.PageInfo.StartCursor)
	assert.Nil(t, conn.PageInfo.EndCursor)
	assert.False(t, conn.PageInfo.HasPreviousPage)
	assert.False(t, conn.PageInfo.HasNextPage)
}

func TestGraph_ScanPagesExhaustively(t *testing.T) {
	ctx := context.Background()
	g, _ := setupGraph(t)

	var all []any
	for i := 7; i >= 1; i-- {
		require.NoError(t, g.Put(ctx, user(fmt.Sprintf("u%d", i))))
		all = append([]any{fmt.Sprintf("u%d", i)}, all...)
	}

	var seen []any
	args := vo.First(3)
	for pages := 0; pages < 10; pages++ {
		conn, err := g.ResolveConnection(ctx, queries.Node(vo.Expression{"type": "User"}, args).Query())
		require.NoError(t, err)
		seen = append(seen, ids(conn)...)
		assert.False(t, conn.PageInfo.HasPreviousPage)
		if !conn.PageInfo.HasNextPage {
			break
		}
		args = vo.First(3).WithAfter(*conn.PageInfo.EndCursor)
	}

	assert.Equal(t, all, seen)
}

func seedPosts(t *testing.T, g *Graph) {
	t.Helper()
	require.NoError(t, g.Put(context.Background(),
		post("p3", "ann", 30),
		post("p1", "ann", 10),
		post("p5", "ann", 50),
		post("x1", "bob", 20),
		post("p2", "ann", 20),
		post("p4", "ann", 40),
	))
}

func TestGraph_QueryPagesForward(t *testing.T) {
	ctx := context.Background()
	g, _ := setupGraph(t)
	seedPosts(t, g)

	expr := vo.Expression{"type": "Post", "authorID": "ann"}
	var seen []any
	args := vo.First(2).OrderBy("createdAt", false)
	for pages := 0; pages < 10; pages++ {
		conn, err := g.ResolveConnection(ctx, queries.Node(expr, args).Query())
		require.NoError(t, err)
		seen = append(seen, ids(conn)...)
		if !conn.PageInfo.HasNextPage {
			break
		}
		args = vo.First(2).OrderBy("createdAt", false).WithAfter(*conn.PageInfo.EndCursor)
	}

	assert.Equal(t, []any{"p1", "p2", "p3", "p4", "p5"}, seen)
}

func TestGraph_QueryPagesBackward(t *testing.T) {
	ctx := context.Background()
	g, _ := setupGraph(t)
	seedPosts(t, g)
	expr := vo.Expression{"type": "Post", "authorID": "ann"}

	conn, err := g.ResolveConnection(ctx, queries.Node(expr, vo.Last(2).OrderBy("createdAt", false)).Query())
	require.NoError(t, err)
	assert.Equal(t, []any{"p4", "p5"}, ids(conn))
	assert.True(t, conn.PageInfo.HasPreviousPage)
	assert.False(t, conn.PageInfo.HasNextPage)

	conn, err = g.ResolveConnection(ctx, queries.Node(expr, vo.Last(2).OrderBy("createdAt", false).WithBefore(*conn.PageInfo.StartCursor)).Query())
	require.NoError(t, err)
	assert.Equal(t, []any{"p2", "p3"}, ids(conn))
	assert.True(t, conn.PageInfo.HasPreviousPage)

	conn, err = g.ResolveConnection(ctx, queries.Node(expr, vo.Last(2).OrderBy("createdAt", false).WithBefore(*conn.PageInfo.StartCursor)).Query())
	require.NoError(t, err)
	assert.Equal(t, []any{"p1"}, ids(conn))
	assert.False(t, conn.PageInfo.HasPreviousPage)
}

func TestGraph_QueryDescending(t *testing.T) {
	g, _ := setupGraph(t)
	seedPosts(t, g)

	conn, err := g.ResolveConnection(context.Background(),
		queries.Node(vo.Expression{"type": "Post", "authorID": "ann"}, vo.First(3).OrderBy("createdAt", true)).Query())
	require.NoError(t, err)
	assert.Equal(t, []any{"p5", "p4", "p3"}, ids(conn))
	assert.True(t, conn.PageInfo.HasNextPage)
}

func TestGraph_QueryRange(t *testing.T) {
	g, _ := setupGraph(t)
	seedPosts(t, g)

	conn, err := g.ResolveConnection(context.Background(),
		queries.Node(vo.Expression{"type": "Post", "authorID": "ann", "createdAt": vo.After(20)}, vo.First(10)).Query())
	require.NoError(t, err)
	assert.Equal(t, []any{"p3", "p4", "p5"}, ids(conn))

	node := conn.Edges[0].Node
	assert.Equal(t, "Post", node.Type())
	assert.Equal(t, int64(30), node["createdAt"])
}

func TestGraph_DirectNodeSkipsQuery(t *testing.T) {
	ctx := context.Background()
	g, store := setupGraph(t)
	require.NoError(t, g.Put(ctx, user("u1"), user("u2")))

	conn, err := g.ResolveConnection(ctx, queries.Node(vo.Expression{"type": "User", "id": "u2"}, vo.First(1)).Query())
	require.NoError(t, err)
	require.Len(t, conn.Edges, 1)
	assert.Equal(t, "name u2", conn.Edges[0].Node["name"])
	assert.Zero(t, store.Calls("Query"))
	assert.Zero(t, store.Calls("Scan"))
	assert.Equal(t, 1, store.Calls("BatchGetItem"))
}

func seedFollows(t *testing.T, g *Graph) {
	t.Helper()
	require.NoError(t, g.Put(context.Background(),
		user("u1"), user("u2"), user("u3"), user("u4"),
		follow("u1", "u3"), follow("u1", "u2"), follow("u1", "u4"),
		follow("u3", "u2"),
	))
}

func TestGraph_OutEdgesAndNodes(t *testing.T) {
	ctx := context.Background()
	g, _ := setupGraph(t)
	seedFollows(t, g)

	follows := queries.Node(vo.Expression{"type": "User", "id": "u1"}, vo.First(1)).
		OutEdges(vo.Expression{"type": "Follow"}, vo.First(10))

	edges, err := g.ResolveConnection(ctx, follows.Query())
	require.NoError(t, err)
	require.Len(t, edges.Edges, 3)
	for i, want := range []string{"u2", "u3", "u4"} {
		assert.Equal(t, "u1", edges.Edges[i].Node.OutID())
		assert.Equal(t, want, edges.Edges[i].Node.InID())
	}

	nodes, err := g.ResolveConnection(ctx, follows.OutNodes(vo.Expression{"type": "User"}).Query())
	require.NoError(t, err)
	assert.Equal(t, []any{"u2", "u3", "u4"}, ids(nodes))
	for i := range nodes.Edges {
		assert.Equal(t, edges.Edges[i].Cursor, nodes.Edges[i].Cursor)
	}
	assert.Equal(t, edges.PageInfo, nodes.PageInfo)
}

func TestGraph_InEdgesUseIndex(t *testing.T) {
	g, _ := setupGraph(t)
	seedFollows(t, g)

	followers, err := g.ResolveConnection(context.Background(),
		queries.Node(vo.Expression{"type": "User", "id": "u2"}, vo.First(1)).
			InEdges(vo.Expression{"type": "Follow"}, vo.First(10)).
			InNodes(vo.Expression{"type": "User"}).
			Query())
	require.NoError(t, err)
	assert.Equal(t, []any{"u1", "u3"}, ids(followers))
}

func TestGraph_EdgesFromZeroOrManyNodes(t *testing.T) {
	ctx := context.Background()
	g, _ := setupGraph(t)
	seedFollows(t, g)

	conn, err := g.ResolveConnection(ctx,
		queries.Node(vo.Expression{"type": "User", "id": "missing"}, vo.First(1)).
			OutEdges(vo.Expression{"type": "Follow"}, vo.First(10)).Query())
	require.NoError(t, err)
	assert.Empty(t, conn.Edges)

	_, err = g.ResolveConnection(ctx,
		queries.Node(vo.Expression{"type": "User"}, vo.First(10)).
			OutEdges(vo.Expression{"type": "Follow"}, vo.First(10)).Query())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnsupportedTraversal))
}

func TestGraph_DirectEdgeAndMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	g, store := setupGraph(t)
	seedFollows(t, g)
	require.NoError(t, g.Put(ctx, follow("u1", "gone")))

	conn, err := g.ResolveConnection(ctx,
		queries.Edge(vo.Expression{"type": "Follow", "outID": "u3", "inID": "u2"}, vo.First(1)).Query())
	require.NoError(t, err)
	require.Len(t, conn.Edges, 1)
	assert.Zero(t, store.Calls("Query"))

	nodes, err := g.ResolveConnection(ctx,
		queries.Node(vo.Expression{"type": "User", "id": "u1"}, vo.First(1)).
			OutEdges(vo.Expression{"type": "Follow"}, vo.First(10)).
			OutNodes(vo.Expression{"type": "User"}).Query())
	require.NoError(t, err)
	assert.Equal(t, []any{nil, "u2", "u3", "u4"}, ids(nodes))
}

func TestGraph_EdgeKeyGivenSkipsPredecessor(t *testing.T) {
	ctx := context.Background()
	g, store := setupGraph(t)
	seedFollows(t, g)

	tests := []struct {
		name string
		from string
	}{
		{name: "missing predecessor", from: "missing"},
		{name: "unrelated predecessor", from: "u2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			q := queries.Node(vo.Expression{"type": "User", "id": tt.from}, vo.First(1)).
				OutEdges(vo.Expression{"type": "Follow", "outID": "u1", "inID": "u2"}, vo.First(10)).
				Query()
			queriesBefore := store.Calls("Query")

			// Act
			conn, err := g.ResolveConnection(ctx, q)

			// Assert
			require.NoError(t, err)
			require.Len(t, conn.Edges, 1)
			assert.Equal(t, "u1", conn.Edges[0].Node.OutID())
			assert.Equal(t, "u2", conn.Edges[0].Node.InID())
			assert.Equal(t, queriesBefore, store.Calls("Query"))
		})
	}
}

func TestGraph_ExplicitNearEndpointWins(t *testing.T) {
	g, _ := setupGraph(t)
	seedFollows(t, g)

	conn, err := g.ResolveConnection(context.Background(),
		queries.Node(vo.Expression{"type": "User", "id": "u3"}, vo.First(1)).
			OutEdges(vo.Expression{"type": "Follow", "outID": "u1"}, vo.First(10)).
			Query())
	require.NoError(t, err)
	require.Len(t, conn.Edges, 3)
	for _, edge := range conn.Edges {
		assert.Equal(t, "u1", edge.Node.OutID())
	}
}

func TestGraph_ZeroPageSize(t *testing.T) {
	ctx := context.Background()
	g, store := setupGraph(t)
	seedPosts(t, g)
	require.NoError(t, g.Put(ctx, user("u1"), user("u2"), user("u3")))

	tests := []struct {
		name  string
		query queries.Query
	}{
		{name: "scan first", query: queries.Node(vo.Expression{"type": "User"}, vo.First(0)).Query()},
		{name: "query first", query: queries.Node(vo.Expression{"type": "Post", "authorID": "ann"}, vo.First(0)).Query()},
		{name: "query last", query: queries.Node(vo.Expression{"type": "Post", "authorID": "ann"}, vo.Last(0)).Query()},
		{name: "direct", query: queries.Node(vo.Expression{"type": "User", "id": "u1"}, vo.First(0)).Query()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := g.ResolveConnection(ctx, tt.query)

			require.NoError(t, err)
			assert.Empty(t, conn.Edges)
			assert.False(t, conn.PageInfo.HasNextPage)
			assert.False(t, conn.PageInfo.HasPreviousPage)
		})
	}
	assert.Zero(t, store.Calls("Query"))
	assert.Zero(t, store.Calls("Scan"))
}

func TestGraph_Single(t *testing.T) {
	ctx := context.Background()
	g, _ := setupGraph(t)
	seedFollows(t, g)

	node, err := g.ResolveSingle(ctx, queries.Node(vo.Expression{"type": "User", "id": "u3"}, vo.First(1)).Single().Query())
	require.NoError(t, err)
	assert.Equal(t, "u3", node.ID())

	_, err = g.Resolve(ctx, queries.Node(vo.Expression{"type": "User", "id": "nope"}, vo.First(1)).Single().Query())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeSingleItemNotFound))

	r, err := g.Resolve(ctx, queries.Node(vo.Expression{"type": "User", "id": "nope"}, vo.First(1)).SingleOrNull().Query())
	require.NoError(t, err)
	assert.True(t, r.IsSingle)
	assert.Nil(t, r.Node)

	_, err = g.Resolve(ctx, queries.Node(vo.Expression{"type": "User"}, vo.First(10)).SingleOrNull().Query())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeSingleItemNotFound))

	followed, err := g.ResolveSingle(ctx,
		queries.Node(vo.Expression{"type": "User", "id": "u3"}, vo.First(1)).Single().
			OutEdges(vo.Expression{"type": "Follow"}, vo.First(10)).Single().
			OutNodes(vo.Expression{"type": "User"}).Query())
	require.NoError(t, err)
	assert.Equal(t, "u2", followed.ID())
}

func TestGraph_Aggregate(t *testing.T) {
	g, _ := setupGraph(t)
	seedFollows(t, g)

	conn, err := g.ResolveConnection(context.Background(), queries.Aggregate(
		queries.Node(vo.Expression{"type": "User", "id": "u4"}, vo.First(1)),
		queries.Node(vo.Expression{"type": "User"}, vo.First(2)),
		queries.Node(vo.Expression{"type": "User", "id": "u1"}, vo.First(1)).SingleOrNull(),
	).Query())
	require.NoError(t, err)
	assert.Equal(t, []any{"u4", "u1", "u2", "u1"}, ids(conn))
	assert.False(t, conn.PageInfo.HasNextPage)
	assert.False(t, conn.PageInfo.HasPreviousPage)
}

func TestGraph_CompileAndTraversalErrors(t *testing.T) {
	ctx := context.Background()
	g, _ := setupGraph(t)

	tests := []struct {
		name  string
		query queries.Query
		check func(error) bool
	}{
		{
			name:  "scan with last",
			query: queries.Node(vo.Expression{"type": "User"}, vo.Last(2)).Query(),
			check: func(err error) bool { return apperrors.IsCode(err, apperrors.CodeUnsupportedTraversal) },
		},
		{
			name:  "no index",
			query: queries.Node(vo.Expression{"type": "Post", "title": "x"}, vo.First(2)).Query(),
			check: func(err error) bool { return apperrors.IsCode(err, apperrors.CodeIndexNotFound) },
		},
		{
			name:  "after and before",
			query: queries.Node(vo.Expression{"type": "Post", "authorID": "ann", "createdAt": vo.After(1).WithBefore(9)}, vo.First(2)).Query(),
			check: func(err error) bool { return apperrors.IsCode(err, apperrors.CodeUnsupportedRange) },
		},
		{
			name:  "unknown type",
			query: queries.Node(vo.Expression{"type": "Comment"}, vo.First(2)).Query(),
			check: func(err error) bool { return apperrors.IsCode(err, apperrors.CodeUnknownTable) },
		},
		{
			name:  "bad cursor",
			query: queries.Node(vo.Expression{"type": "User"}, vo.First(2).WithAfter("%%%")).Query(),
			check: func(err error) bool { return apperrors.IsCode(err, apperrors.CodeInvalidIdentifier) },
		},
		{
			name:  "invalid args",
			query: queries.Node(vo.Expression{"type": "User"}, vo.ConnectionArgs{}).Query(),
			check: func(err error) bool { return apperrors.IsType(err, apperrors.ErrorTypeValidation) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Resolve(ctx, tt.query)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestGraph_GetPutDelete(t *testing.T) {
	ctx := context.Background()
	g, store := setupGraph(t)
	seedFollows(t, g)

	userID, err := g.ID(user("u2"))
	require.NoError(t, err)
	edgeID, err := g.ID(follow("u1", "u2"))
	require.NoError(t, err)

	got, err := g.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "name u2", got["name"])
	assert.Equal(t, "User", got.Type())

	got, err = g.Get(ctx, edgeID)
	require.NoError(t, err)
	assert.True(t, got.IsEdge())

	require.NoError(t, g.Delete(ctx, userID, edgeID))
	assert.Equal(t, 3, store.Len("Users"))
	assert.Equal(t, 3, store.Len("Follows"))

	_, err = g.Get(ctx, userID)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = g.Get(ctx, "not-an-id")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidIdentifier))
}

func TestGraph_PutValidates(t *testing.T) {
	g, _ := setupGraph(t)

	err := g.Put(context.Background(), entities.Model{"type": "User"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	err = g.Put(context.Background(), entities.NewNode("User", func() {}))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnsupportedType))
}
