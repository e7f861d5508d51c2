// Package dynamodbtest provides an in-memory stand-in for the DynamoDB API,
// driven by the same table schema the query layer compiles against.
//
// The store evaluates the key condition grammar the compiler emits, keeps
// local and global secondary indexes, pages with Limit, ExclusiveStartKey and
// LastEvaluatedKey the way DynamoDB does, enforces batch size limits and can
// be told to leave batch requests unprocessed or to fail the next calls.
package dynamodbtest

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/schema"
)

// Item is a stored item.
type Item = map[string]types.AttributeValue

const (
	maxBatchGetKeys     = 100
	maxBatchWriteItems  = 25
	validationErrorCode = "ValidationException"
)

type table struct {
	def   *schema.Table
	items map[string]Item
}

// Store is an in-memory DynamoDB. The zero value is not usable; call NewStore.
type Store struct {
	mu          sync.Mutex
	tables      map[string]*table
	unprocessed int
	failures    []error
	calls       map[string]int
}

// NewStore creates an empty store with one table per schema table.
func NewStore(cfg *schema.Config) *Store {
	s := &Store{
		tables: make(map[string]*table, len(cfg.Tables)),
		calls:  make(map[string]int),
	}
	for i := range cfg.Tables {
		def := &cfg.Tables[i]
		s.tables[def.Name] = &table{def: def, items: make(map[string]Item)}
	}
	return s
}

// LeaveUnprocessed makes the following batch calls report up to n requests,
// in total, as unprocessed.
func (s *Store) LeaveUnprocessed(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unprocessed = n
}

// FailNext queues errors returned, one per call, by the next calls.
func (s *Store) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Calls returns how many times an operation was invoked.
func (s *Store) Calls(operation string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[operation]
}

// Len returns the number of items in a table.
func (s *Store) Len(tableName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[tableName]; ok {
		return len(t.items)
	}
	return 0
}

// Items returns copies of every item of a table in primary key order.
func (s *Store) Items(tableName string) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tableName]
	if !ok {
		return nil
	}
	items := t.sorted(t.def.PrimaryKey())
	out := make([]Item, 0, len(items))
	for _, item := range items {
		out = append(out, cloneItem(item))
	}
	return out
}

// Seed stores items directly, without counting calls or injecting failures.
func (s *Store) Seed(tableName string, items ...Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(tableName)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := t.put(item); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) begin(operation string) error {
	s.calls[operation]++
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return err
	}
	return nil
}

func (s *Store) table(name string) (*table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found: Table: " + name + " not found")}
	}
	return t, nil
}

// takeUnprocessed returns how many of n requests to leave unprocessed.
func (s *Store) takeUnprocessed(n int) int {
	k := min(s.unprocessed, n)
	s.unprocessed -= k
	return k
}

func validationError(format string, args ...any) error {
	return &smithy.GenericAPIError{Code: validationErrorCode, Message: fmt.Sprintf(format, args...)}
}

func (s *Store) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("GetItem"); err != nil {
		return nil, err
	}
	t, err := s.table(aws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.key(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := t.items[k]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	projected, err := project(item, params.ProjectionExpression, params.ExpressionAttributeNames)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: projected}, nil
}

func (s *Store) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("PutItem"); err != nil {
		return nil, err
	}
	t, err := s.table(aws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	return &dynamodb.PutItemOutput{}, t.put(params.Item)
}

func (s *Store) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("DeleteItem"); err != nil {
		return nil, err
	}
	t, err := s.table(aws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	return &dynamodb.DeleteItemOutput{}, t.delete(params.Key)
}

func (s *Store) BatchGetItem(_ context.Context, params *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("BatchGetItem"); err != nil {
		return nil, err
	}

	total := 0
	for _, ka := range params.RequestItems {
		total += len(ka.Keys)
	}
	if total == 0 {
		return nil, validationError("The list of keys in RequestItems is empty")
	}
	if total > maxBatchGetKeys {
		return nil, validationError("Too many items requested for the BatchGetItem call")
	}
	skip := s.takeUnprocessed(total)

	out := &dynamodb.BatchGetItemOutput{
		Responses:       make(map[string][]map[string]types.AttributeValue),
		UnprocessedKeys: make(map[string]types.KeysAndAttributes),
	}
	for _, name := range sortedNames(params.RequestItems) {
		ka := params.RequestItems[name]
		t, err := s.table(name)
		if err != nil {
			return nil, err
		}
		var found []Item
		for _, key := range ka.Keys {
			if skip > 0 {
				skip--
				pending := out.UnprocessedKeys[name]
				pending.Keys = append(pending.Keys, key)
				pending.ProjectionExpression = ka.ProjectionExpression
				pending.ExpressionAttributeNames = ka.ExpressionAttributeNames
				out.UnprocessedKeys[name] = pending
				continue
			}
			k, err := t.key(key)
			if err != nil {
				return nil, err
			}
			item, ok := t.items[k]
			if !ok {
				continue
			}
			projected, err := project(item, ka.ProjectionExpression, ka.ExpressionAttributeNames)
			if err != nil {
				return nil, err
			}
			found = append(found, projected)
		}
		// Responses are not in request order.
		for i, j := 0, len(found)-1; i < j; i, j = i+1, j-1 {
			found[i], found[j] = found[j], found[i]
		}
		out.Responses[name] = found
	}
	return out, nil
}

func (s *Store) BatchWriteItem(_ context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("BatchWriteItem"); err != nil {
		return nil, err
	}

	total := 0
	for _, reqs := range params.RequestItems {
		total += len(reqs)
	}
	if total == 0 {
		return nil, validationError("The list of requests in RequestItems is empty")
	}
	if total > maxBatchWriteItems {
		return nil, validationError("Too many items requested for the BatchWriteItem call")
	}
	skip := s.takeUnprocessed(total)

	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: make(map[string][]types.WriteRequest)}
	for _, name := range sortedNames(params.RequestItems) {
		t, err := s.table(name)
		if err != nil {
			return nil, err
		}
		for _, req := range params.RequestItems[name] {
			if skip > 0 {
				skip--
				out.UnprocessedItems[name] = append(out.UnprocessedItems[name], req)
				continue
			}
			switch {
			case req.PutRequest != nil:
				err = t.put(req.PutRequest.Item)
			case req.DeleteRequest != nil:
				err = t.delete(req.DeleteRequest.Key)
			default:
				err = validationError("write request has neither a put nor a delete")
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (s *Store) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Query"); err != nil {
		return nil, err
	}
	t, err := s.table(aws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	index, err := t.index(aws.ToString(params.IndexName))
	if err != nil {
		return nil, err
	}

	conditions, err := parseKeyCondition(aws.ToString(params.KeyConditionExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if err := validateConditions(index, conditions); err != nil {
		return nil, err
	}

	var matched []Item
	for _, item := range t.sorted(index) {
		if matchesAll(item, conditions) {
			matched = append(matched, item)
		}
	}
	if params.ScanIndexForward != nil && !*params.ScanIndexForward {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	forward := params.ScanIndexForward == nil || *params.ScanIndexForward
	items, last, err := t.page(index, matched, params.ExclusiveStartKey, params.Limit, forward)
	if err != nil {
		return nil, err
	}
	projected, err := projectAll(items, params.ProjectionExpression, params.ExpressionAttributeNames)
	if err != nil {
		return nil, err
	}
	return &dynamodb.QueryOutput{
		Items:            projected,
		Count:            int32(len(projected)),
		ScannedCount:     int32(len(projected)),
		LastEvaluatedKey: last,
	}, nil
}

func (s *Store) Scan(_ context.Context, params *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Scan"); err != nil {
		return nil, err
	}
	t, err := s.table(aws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	index, err := t.index(aws.ToString(params.IndexName))
	if err != nil {
		return nil, err
	}

	items, last, err := t.page(index, t.sorted(index), params.ExclusiveStartKey, params.Limit, true)
	if err != nil {
		return nil, err
	}
	projected, err := projectAll(items, params.ProjectionExpression, params.ExpressionAttributeNames)
	if err != nil {
		return nil, err
	}
	return &dynamodb.ScanOutput{
		Items:            projected,
		Count:            int32(len(projected)),
		ScannedCount:     int32(len(projected)),
		LastEvaluatedKey: last,
	}, nil
}

func (t *table) index(name string) (schema.Index, error) {
	if name == "" {
		return t.def.PrimaryKey(), nil
	}
	for _, idx := range t.def.SecondaryIndexes() {
		if idx.Name == name {
			return idx, nil
		}
	}
	return schema.Index{}, validationError("The table does not have the specified index: %s", name)
}

// key renders the primary key of an item or key map as a map key.
func (t *table) key(item Item) (string, error) {
	var b strings.Builder
	for _, name := range t.def.PrimaryKey().AttributeNames() {
		av, ok := item[name]
		if !ok {
			return "", validationError("The provided key element does not match the schema: missing %s", name)
		}
		switch av := av.(type) {
		case *types.AttributeValueMemberS:
			fmt.Fprintf(&b, "S%d:%s|", len(av.Value), av.Value)
		case *types.AttributeValueMemberN:
			f, ok := new(big.Float).SetString(av.Value)
			if !ok {
				return "", validationError("invalid number %q", av.Value)
			}
			fmt.Fprintf(&b, "N%s|", f.Text('g', 40))
		case *types.AttributeValueMemberB:
			fmt.Fprintf(&b, "B%x|", av.Value)
		default:
			return "", validationError("The provided key element does not match the schema: %s", name)
		}
	}
	return b.String(), nil
}

func (t *table) put(item Item) error {
	k, err := t.key(item)
	if err != nil {
		return err
	}
	t.items[k] = cloneItem(item)
	return nil
}

func (t *table) delete(keyMap Item) error {
	k, err := t.key(keyMap)
	if err != nil {
		return err
	}
	delete(t.items, k)
	return nil
}

// orderAttributes lists the attributes that order items within an index:
// the primary key for the table itself, otherwise the index range key, the
// index hash key and then the primary key.
func (t *table) orderAttributes(index schema.Index) []string {
	if index.IsPrimary() {
		return index.AttributeNames()
	}
	var names []string
	if r := index.RangeKey(); r != "" {
		names = append(names, r)
	}
	names = append(names, index.HashKey())
	for _, name := range t.def.PrimaryKey().AttributeNames() {
		if !contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

// sorted returns the items present in index, ascending in index order.
func (t *table) sorted(index schema.Index) []Item {
	var items []Item
	for _, item := range t.items {
		if hasAll(item, index.AttributeNames()) {
			items = append(items, item)
		}
	}
	order := t.orderAttributes(index)
	sort.Slice(items, func(i, j int) bool {
		return compareTuple(items[i], items[j], order) < 0
	})
	return items
}

// page applies the exclusive start key and limit to ordered items. The last
// evaluated key is set whenever the limit was reached, as DynamoDB does.
func (t *table) page(index schema.Index, items []Item, start Item, limit *int32, forward bool) ([]Item, Item, error) {
	order := t.orderAttributes(index)
	if len(start) > 0 {
		if !hasAll(start, order) {
			return nil, nil, validationError("The provided starting key is invalid")
		}
		from := len(items)
		for i, item := range items {
			c := compareTuple(item, start, order)
			if (forward && c > 0) || (!forward && c < 0) {
				from = i
				break
			}
		}
		items = items[from:]
	}

	if limit == nil {
		return items, nil, nil
	}
	if *limit <= 0 {
		return nil, nil, validationError("Limit must be greater than or equal to 1")
	}
	if int(*limit) > len(items) {
		return items, nil, nil
	}
	items = items[:*limit]
	last := items[len(items)-1]
	lastKey := make(Item, len(order))
	for _, name := range order {
		lastKey[name] = cloneValue(last[name])
	}
	return items, lastKey, nil
}

type condition struct {
	name  string
	op    string
	value types.AttributeValue
}

func resolveName(token string, names map[string]string) (string, error) {
	if strings.HasPrefix(token, "#") {
		name, ok := names[token]
		if !ok {
			return "", validationError("An expression attribute name used in the document path is not defined; attribute name: %s", token)
		}
		return name, nil
	}
	return token, nil
}

func resolveValue(token string, values map[string]types.AttributeValue) (types.AttributeValue, error) {
	v, ok := values[token]
	if !ok {
		return nil, validationError("An expression attribute value used in expression is not defined; attribute value: %s", token)
	}
	return v, nil
}

func parseKeyCondition(expr string, names map[string]string, values map[string]types.AttributeValue) ([]condition, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, validationError("KeyConditionExpression must be specified")
	}
	var out []condition
	for _, clause := range strings.Split(expr, " AND ") {
		clause = strings.TrimSpace(clause)
		if strings.HasPrefix(clause, "begins_with(") && strings.HasSuffix(clause, ")") {
			args := strings.Split(strings.TrimSuffix(strings.TrimPrefix(clause, "begins_with("), ")"), ",")
			if len(args) != 2 {
				return nil, validationError("Invalid KeyConditionExpression: %s", clause)
			}
			name, err := resolveName(strings.TrimSpace(args[0]), names)
			if err != nil {
				return nil, err
			}
			value, err := resolveValue(strings.TrimSpace(args[1]), values)
			if err != nil {
				return nil, err
			}
			out = append(out, condition{name: name, op: "begins_with", value: value})
			continue
		}

		fields := strings.Fields(clause)
		if len(fields) != 3 {
			return nil, validationError("Invalid KeyConditionExpression: %s", clause)
		}
		switch fields[1] {
		case "=", "<", ">", "<=", ">=":
		default:
			return nil, validationError("Invalid KeyConditionExpression operator: %s", fields[1])
		}
		name, err := resolveName(fields[0], names)
		if err != nil {
			return nil, err
		}
		value, err := resolveValue(fields[2], values)
		if err != nil {
			return nil, err
		}
		out = append(out, condition{name: name, op: fields[1], value: value})
	}
	return out, nil
}

func validateConditions(index schema.Index, conditions []condition) error {
	hashed := false
	ranged := 0
	for _, c := range conditions {
		keyType, ok := index.KeyType(c.name)
		if !ok {
			return validationError("Query condition missed key schema element: %s", c.name)
		}
		if keyType == schema.KeyTypeHash {
			if c.op != "=" {
				return validationError("Query key condition not supported on hash key %s", c.name)
			}
			hashed = true
			continue
		}
		ranged++
	}
	if !hashed {
		return validationError("Query condition missed key schema element: %s", index.HashKey())
	}
	if ranged > 1 {
		return validationError("KeyConditionExpressions must only contain one condition per key")
	}
	return nil
}

func matchesAll(item Item, conditions []condition) bool {
	for _, c := range conditions {
		av, ok := item[c.name]
		if !ok {
			return false
		}
		if c.op == "begins_with" {
			if !beginsWith(av, c.value) {
				return false
			}
			continue
		}
		cmp, ok := compareValues(av, c.value)
		if !ok {
			return false
		}
		switch c.op {
		case "=":
			ok = cmp == 0
		case "<":
			ok = cmp < 0
		case ">":
			ok = cmp > 0
		case "<=":
			ok = cmp <= 0
		case ">=":
			ok = cmp >= 0
		}
		if !ok {
			return false
		}
	}
	return true
}

func beginsWith(av, prefix types.AttributeValue) bool {
	switch av := av.(type) {
	case *types.AttributeValueMemberS:
		p, ok := prefix.(*types.AttributeValueMemberS)
		return ok && strings.HasPrefix(av.Value, p.Value)
	case *types.AttributeValueMemberB:
		p, ok := prefix.(*types.AttributeValueMemberB)
		return ok && bytes.HasPrefix(av.Value, p.Value)
	}
	return false
}

// compareValues orders two scalar attribute values of the same type.
func compareValues(a, b types.AttributeValue) (int, bool) {
	switch a := a.(type) {
	case *types.AttributeValueMemberS:
		if b, ok := b.(*types.AttributeValueMemberS); ok {
			return strings.Compare(a.Value, b.Value), true
		}
	case *types.AttributeValueMemberB:
		if b, ok := b.(*types.AttributeValueMemberB); ok {
			return bytes.Compare(a.Value, b.Value), true
		}
	case *types.AttributeValueMemberN:
		if b, ok := b.(*types.AttributeValueMemberN); ok {
			fa, okA := new(big.Float).SetString(a.Value)
			fb, okB := new(big.Float).SetString(b.Value)
			if okA && okB {
				return fa.Cmp(fb), true
			}
		}
	}
	return 0, false
}

func compareTuple(a, b Item, names []string) int {
	for _, name := range names {
		c, ok := compareValues(a[name], b[name])
		if !ok {
			c = strings.Compare(fmt.Sprintf("%T", a[name]), fmt.Sprintf("%T", b[name]))
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func projectAll(items []Item, projection *string, names map[string]string) ([]map[string]types.AttributeValue, error) {
	out := make([]map[string]types.AttributeValue, 0, len(items))
	for _, item := range items {
		projected, err := project(item, projection, names)
		if err != nil {
			return nil, err
		}
		out = append(out, projected)
	}
	return out, nil
}

func project(item Item, projection *string, names map[string]string) (Item, error) {
	if projection == nil || *projection == "" {
		return cloneItem(item), nil
	}
	out := make(Item)
	for _, token := range strings.Split(*projection, ",") {
		name, err := resolveName(strings.TrimSpace(token), names)
		if err != nil {
			return nil, err
		}
		if av, ok := item[name]; ok {
			out[name] = cloneValue(av)
		}
	}
	return out, nil
}

func cloneItem(item Item) Item {
	out := make(Item, len(item))
	for name, av := range item {
		out[name] = cloneValue(av)
	}
	return out
}

func cloneValue(av types.AttributeValue) types.AttributeValue {
	switch av := av.(type) {
	case *types.AttributeValueMemberB:
		return &types.AttributeValueMemberB{Value: append([]byte(nil), av.Value...)}
	case *types.AttributeValueMemberBS:
		set := make([][]byte, len(av.Value))
		for i, b := range av.Value {
			set[i] = append([]byte(nil), b...)
		}
		return &types.AttributeValueMemberBS{Value: set}
	case *types.AttributeValueMemberSS:
		return &types.AttributeValueMemberSS{Value: append([]string(nil), av.Value...)}
	case *types.AttributeValueMemberNS:
		return &types.AttributeValueMemberNS{Value: append([]string(nil), av.Value...)}
	case *types.AttributeValueMemberL:
		list := make([]types.AttributeValue, len(av.Value))
		for i, v := range av.Value {
			list[i] = cloneValue(v)
		}
		return &types.AttributeValueMemberL{Value: list}
	case *types.AttributeValueMemberM:
		return &types.AttributeValueMemberM{Value: cloneItem(av.Value)}
	case *types.AttributeValueMemberS:
		return &types.AttributeValueMemberS{Value: av.Value}
	case *types.AttributeValueMemberN:
		return &types.AttributeValueMemberN{Value: av.Value}
	case *types.AttributeValueMemberBOOL:
		return &types.AttributeValueMemberBOOL{Value: av.Value}
	case *types.AttributeValueMemberNULL:
		return &types.AttributeValueMemberNULL{Value: av.Value}
	}
	return av
}

func hasAll(item Item, names []string) bool {
	for _, name := range names {
		if _, ok := item[name]; !ok {
			return false
		}
	}
	return true
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
