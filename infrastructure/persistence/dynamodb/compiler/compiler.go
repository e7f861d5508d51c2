// Package compiler turns traversal expressions into DynamoDB scan and query
// requests: it picks the key schema that can serve an expression and renders
// key conditions, placeholder values and projections against it.
package compiler

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/valueobjects"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb/codec"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/schema"
	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
)

// Placeholder prefixes.
const (
	NamePrefix       = "#res"
	EqualPrefix      = ":eq"
	AfterPrefix      = ":after"
	BeforePrefix     = ":before"
	BeginsWithPrefix = ":bw"
)

// Sentinels standing in for an unbounded side of a range.
const (
	MinString = " "
	MinNumber = "0"
	MaxNumber = "9.9999999999999999999999999999999999999E+125"
)

// MaxString is a string that sorts after every realistic key value.
var MaxString = strings.Repeat(string(utf8.MaxRune), 16)

// anyKeyType marks a required attribute that may be either HASH or RANGE.
const anyKeyType schema.KeyType = ""

// requiredKeySchema lists the key role each constrained attribute needs.
func requiredKeySchema(expr valueobjects.Expression, args valueobjects.ConnectionArgs) map[string]schema.KeyType {
	required := make(map[string]schema.KeyType, len(expr))
	for _, name := range expr.Names() {
		if expr.IsRange(name) {
			required[name] = schema.KeyTypeRange
		} else {
			required[name] = anyKeyType
		}
	}
	if args.Order != "" {
		required[args.Order] = schema.KeyTypeRange
	}
	return required
}

func satisfies(index schema.Index, required map[string]schema.KeyType) bool {
	hasHash := false
	for name, want := range required {
		got, ok := index.KeyType(name)
		if !ok {
			return false
		}
		if want != anyKeyType && want != got {
			return false
		}
		if got == schema.KeyTypeHash {
			hasHash = true
		}
	}
	return hasHash
}

// SelectIndex returns the first key schema able to serve the expression: the
// primary key, then local and global secondary indexes in declaration order.
func SelectIndex(expr valueobjects.Expression, args valueobjects.ConnectionArgs, table *schema.Table) (schema.Index, error) {
	required := requiredKeySchema(expr, args)

	if primary := table.PrimaryKey(); satisfies(primary, required) {
		return primary, nil
	}
	for _, index := range table.SecondaryIndexes() {
		if satisfies(index, required) {
			return index, nil
		}
	}

	names := make([]string, 0, len(required))
	for name := range required {
		names = append(names, name)
	}
	sort.Strings(names)
	return schema.Index{}, apperrors.NewIndexNotFoundError(table.Name, names)
}

func checkRange(name string, r valueobjects.Range) error {
	switch {
	case r.HasAfter && r.HasBefore:
		return apperrors.NewUnsupportedRangeError(name, "'after' and 'before' cannot be combined")
	case r.HasBeginsWith && (r.HasAfter || r.HasBefore):
		return apperrors.NewUnsupportedRangeError(name, "'begins_with' cannot be combined with another bound")
	case r.HasBeginsWith && r.BeginsWith == nil:
		return apperrors.NewUnsupportedRangeError(name, "'begins_with' requires a value")
	case !r.HasAfter && !r.HasBefore && !r.HasBeginsWith:
		return apperrors.NewUnsupportedRangeError(name, "range has no bound")
	}
	return nil
}

// BuildKeyConditionExpression renders the expression's constraints as a key
// condition, one clause per attribute in name order.
func BuildKeyConditionExpression(expr valueobjects.Expression) (string, error) {
	clauses := make([]string, 0, len(expr))
	for _, name := range expr.Names() {
		placeholder := NamePrefix + name

		r, isRange := expr.Range(name)
		if !isRange {
			clauses = append(clauses, fmt.Sprintf("%s = %s%s", placeholder, EqualPrefix, name))
			continue
		}
		if err := checkRange(name, r); err != nil {
			return "", err
		}
		switch {
		case r.HasAfter:
			clauses = append(clauses, fmt.Sprintf("%s > %s%s", placeholder, AfterPrefix, name))
		case r.HasBefore:
			clauses = append(clauses, fmt.Sprintf("%s < %s%s", placeholder, BeforePrefix, name))
		case r.HasBeginsWith:
			clauses = append(clauses, fmt.Sprintf("begins_with(%s, %s%s)", placeholder, BeginsWithPrefix, name))
		}
	}
	return strings.Join(clauses, " AND "), nil
}

// BuildAttributeValues renders the placeholder values for the key condition,
// coercing each literal to the attribute's declared type. A nil after/before
// bound is replaced with the minimum/maximum sentinel for that type.
func BuildAttributeValues(expr valueobjects.Expression, table *schema.Table) (map[string]types.AttributeValue, error) {
	values := make(map[string]types.AttributeValue, len(expr))
	for _, name := range expr.Names() {
		r, isRange := expr.Range(name)
		if !isRange {
			av, err := coerce(table, name, expr[name])
			if err != nil {
				return nil, err
			}
			values[EqualPrefix+name] = av
			continue
		}
		if err := checkRange(name, r); err != nil {
			return nil, err
		}

		var (
			key string
			av  types.AttributeValue
			err error
		)
		switch {
		case r.HasAfter:
			key = AfterPrefix + name
			if r.After == nil {
				av, err = minSentinel(table, name)
			} else {
				av, err = coerce(table, name, r.After)
			}
		case r.HasBefore:
			key = BeforePrefix + name
			if r.Before == nil {
				av, err = maxSentinel(table, name)
			} else {
				av, err = coerce(table, name, r.Before)
			}
		case r.HasBeginsWith:
			key = BeginsWithPrefix + name
			av, err = coerce(table, name, r.BeginsWith)
		}
		if err != nil {
			return nil, err
		}
		values[key] = av
	}
	return values, nil
}

func coerce(table *schema.Table, name string, v any) (types.AttributeValue, error) {
	if attrType, ok := table.AttributeType(name); ok {
		return codec.Coerce(name, v, attrType)
	}
	return codec.ToAttribute(v)
}

func declaredType(table *schema.Table, name string) (schema.AttributeType, error) {
	attrType, ok := table.AttributeType(name)
	if !ok {
		return "", apperrors.NewUnsupportedRangeError(name, "open bounds need a declared attribute type")
	}
	return attrType, nil
}

func minSentinel(table *schema.Table, name string) (types.AttributeValue, error) {
	attrType, err := declaredType(table, name)
	if err != nil {
		return nil, err
	}
	switch attrType {
	case schema.AttributeTypeString:
		return &types.AttributeValueMemberS{Value: MinString}, nil
	case schema.AttributeTypeNumber:
		return &types.AttributeValueMemberN{Value: MinNumber}, nil
	default:
		return &types.AttributeValueMemberB{Value: make([]byte, table.KeyWidth(name))}, nil
	}
}

func maxSentinel(table *schema.Table, name string) (types.AttributeValue, error) {
	attrType, err := declaredType(table, name)
	if err != nil {
		return nil, err
	}
	switch attrType {
	case schema.AttributeTypeString:
		return &types.AttributeValueMemberS{Value: MaxString}, nil
	case schema.AttributeTypeNumber:
		return &types.AttributeValueMemberN{Value: MaxNumber}, nil
	default:
		return &types.AttributeValueMemberB{Value: bytes.Repeat([]byte{0xff}, table.KeyWidth(name))}, nil
	}
}

// BuildProjection returns the projection expression and its name
// placeholders for the constrained attributes, the order attribute and the
// mandatory attributes, deduplicated and in name order.
func BuildProjection(expr valueobjects.Expression, args valueobjects.ConnectionArgs, mandatory ...string) (string, map[string]string) {
	seen := make(map[string]struct{})
	add := func(name string) {
		if name != "" {
			seen[name] = struct{}{}
		}
	}
	for _, name := range expr.Names() {
		add(name)
	}
	add(args.Order)
	for _, name := range mandatory {
		add(name)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	placeholders := make([]string, 0, len(names))
	attributeNames := make(map[string]string, len(names))
	for _, name := range names {
		placeholders = append(placeholders, NamePrefix+name)
		attributeNames[NamePrefix+name] = name
	}
	return strings.Join(placeholders, ", "), attributeNames
}

// KeyAttributes returns the primary key attributes followed by any extra key
// attributes of index, without duplicates. These are the attributes a cursor
// read from the index must carry.
func KeyAttributes(table *schema.Table, index schema.Index) []string {
	names := table.PrimaryKey().AttributeNames()
	for _, name := range index.AttributeNames() {
		dup := false
		for _, existing := range names {
			if existing == name {
				dup = true
				break
			}
		}
		if !dup {
			names = append(names, name)
		}
	}
	return names
}

func exclusiveStartKey(args valueobjects.ConnectionArgs) (map[string]types.AttributeValue, error) {
	cursor := args.Cursor()
	if cursor == "" {
		return nil, nil
	}
	return codec.FromCursor(cursor)
}

func limit(args valueobjects.ConnectionArgs) *int32 {
	if n := args.Limit(); n > 0 {
		return aws.Int32(int32(n))
	}
	return nil
}

// BuildQuery compiles an expression into a complete query request against the
// selected index. The projection carries the index's key attributes so every
// returned row can be turned into a cursor.
func BuildQuery(table *schema.Table, expr valueobjects.Expression, args valueobjects.ConnectionArgs, mandatory ...string) (*dynamodb.QueryInput, schema.Index, error) {
	index, err := SelectIndex(expr, args, table)
	if err != nil {
		return nil, schema.Index{}, err
	}
	condition, err := BuildKeyConditionExpression(expr)
	if err != nil {
		return nil, schema.Index{}, err
	}
	values, err := BuildAttributeValues(expr, table)
	if err != nil {
		return nil, schema.Index{}, err
	}
	startKey, err := exclusiveStartKey(args)
	if err != nil {
		return nil, schema.Index{}, err
	}

	projection, names := BuildProjection(expr, args, append(KeyAttributes(table, index), mandatory...)...)
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(table.Name),
		KeyConditionExpression:    aws.String(condition),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ProjectionExpression:      aws.String(projection),
		ScanIndexForward:          aws.Bool(args.ScanForward()),
		ExclusiveStartKey:         startKey,
		Limit:                     limit(args),
	}
	if !index.IsPrimary() {
		input.IndexName = aws.String(index.Name)
	}
	return input, index, nil
}

// BuildScan compiles a full-table scan. Scans read in key order only, so the
// order attribute and scan direction do not apply.
func BuildScan(table *schema.Table, args valueobjects.ConnectionArgs, mandatory ...string) (*dynamodb.ScanInput, error) {
	startKey, err := exclusiveStartKey(args)
	if err != nil {
		return nil, err
	}
	projection, names := BuildProjection(nil, valueobjects.ConnectionArgs{}, append(table.PrimaryKey().AttributeNames(), mandatory...)...)
	return &dynamodb.ScanInput{
		TableName:                aws.String(table.Name),
		ProjectionExpression:     aws.String(projection),
		ExpressionAttributeNames: names,
		ExclusiveStartKey:        startKey,
		Limit:                    limit(args),
	}, nil
}
