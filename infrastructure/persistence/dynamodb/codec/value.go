// Package codec converts between model values and DynamoDB attribute values,
// and between model keys and opaque pagination cursors.
package codec

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/entities"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/schema"
	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
)

// Kind is the scalar kind of a model value.
type Kind int

const (
	KindInvalid Kind = iota
	KindBytes
	KindString
	KindNumber
	KindBool
)

// String returns the one-letter store tag for the kind.
func (k Kind) String() string {
	switch k {
	case KindBytes:
		return "B"
	case KindString:
		return "S"
	case KindNumber:
		return "N"
	case KindBool:
		return "BOOL"
	default:
		return "INVALID"
	}
}

// KindOf classifies a scalar value.
func KindOf(v any) Kind {
	switch v := v.(type) {
	case []byte:
		return KindBytes
	case string:
		return KindString
	case bool:
		return KindBool
	case json.Number:
		if _, err := v.Float64(); err == nil {
			return KindNumber
		}
		return KindInvalid
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindNumber
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return KindInvalid
		}
		return KindNumber
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return KindInvalid
		}
		return KindNumber
	}
	return KindInvalid
}

// ToAttribute converts a model value to its typed attribute representation.
func ToAttribute(v any) (types.AttributeValue, error) {
	return encode("", v)
}

func encode(name string, v any) (types.AttributeValue, error) {
	switch KindOf(v) {
	case KindBytes:
		b := v.([]byte)
		return &types.AttributeValueMemberB{Value: append([]byte(nil), b...)}, nil
	case KindString:
		return &types.AttributeValueMemberS{Value: v.(string)}, nil
	case KindNumber:
		return &types.AttributeValueMemberN{Value: formatNumber(v)}, nil
	case KindBool:
		return &types.AttributeValueMemberBOOL{Value: v.(bool)}, nil
	}
	return encodeSet(name, v)
}

func encodeSet(name string, v any) (types.AttributeValue, error) {
	var elems []any
	switch s := v.(type) {
	case [][]byte:
		for _, e := range s {
			elems = append(elems, e)
		}
	case []string:
		for _, e := range s {
			elems = append(elems, e)
		}
	case []int:
		for _, e := range s {
			elems = append(elems, e)
		}
	case []int64:
		for _, e := range s {
			elems = append(elems, e)
		}
	case []float64:
		for _, e := range s {
			elems = append(elems, e)
		}
	case []any:
		elems = s
	default:
		return nil, apperrors.NewUnsupportedTypeError(name, v)
	}
	if len(elems) == 0 {
		return nil, apperrors.NewUnsupportedTypeError(name, v)
	}

	kind := KindOf(elems[0])
	for _, e := range elems[1:] {
		if KindOf(e) != kind {
			return nil, apperrors.NewUnsupportedTypeError(name, v)
		}
	}

	switch kind {
	case KindBytes:
		set := make([][]byte, 0, len(elems))
		for _, e := range elems {
			set = append(set, append([]byte(nil), e.([]byte)...))
		}
		return &types.AttributeValueMemberBS{Value: set}, nil
	case KindString:
		set := make([]string, 0, len(elems))
		for _, e := range elems {
			set = append(set, e.(string))
		}
		return &types.AttributeValueMemberSS{Value: set}, nil
	case KindNumber:
		set := make([]string, 0, len(elems))
		for _, e := range elems {
			set = append(set, formatNumber(e))
		}
		return &types.AttributeValueMemberNS{Value: set}, nil
	}
	return nil, apperrors.NewUnsupportedTypeError(name, v)
}

func formatNumber(v any) string {
	switch n := v.(type) {
	case int:
		return strconv.FormatInt(int64(n), 10)
	case int8:
		return strconv.FormatInt(int64(n), 10)
	case int16:
		return strconv.FormatInt(int64(n), 10)
	case int32:
		return strconv.FormatInt(int64(n), 10)
	case int64:
		return strconv.FormatInt(n, 10)
	case uint:
		return strconv.FormatUint(uint64(n), 10)
	case uint8:
		return strconv.FormatUint(uint64(n), 10)
	case uint16:
		return strconv.FormatUint(uint64(n), 10)
	case uint32:
		return strconv.FormatUint(uint64(n), 10)
	case uint64:
		return strconv.FormatUint(n, 10)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case json.Number:
		return n.String()
	}
	return ""
}

// FromAttribute converts a typed attribute back to a model value. Numbers are
// read as integers: any fractional part is dropped.
func FromAttribute(name string, av types.AttributeValue) (any, error) {
	switch av := av.(type) {
	case *types.AttributeValueMemberB:
		return append([]byte(nil), av.Value...), nil
	case *types.AttributeValueMemberS:
		return av.Value, nil
	case *types.AttributeValueMemberN:
		return parseInteger(name, av.Value)
	case *types.AttributeValueMemberBOOL:
		return av.Value, nil
	case *types.AttributeValueMemberBS:
		out := make([][]byte, 0, len(av.Value))
		for _, b := range av.Value {
			out = append(out, append([]byte(nil), b...))
		}
		return out, nil
	case *types.AttributeValueMemberSS:
		return append([]string(nil), av.Value...), nil
	case *types.AttributeValueMemberNS:
		out := make([]int64, 0, len(av.Value))
		for _, s := range av.Value {
			n, err := parseInteger(name, s)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberL, *types.AttributeValueMemberM:
		var out any
		if err := attributevalue.Unmarshal(av, &out); err != nil {
			return nil, apperrors.NewUnsupportedTypeError(name, av).WithCause(err)
		}
		return out, nil
	}
	return nil, apperrors.NewUnsupportedTypeError(name, av)
}

// parseInteger reads the leading integer of a decimal string, ignoring any
// fraction or exponent that follows it.
func parseInteger(name, s string) (int64, error) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, apperrors.NewUnsupportedTypeError(name, s)
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, apperrors.NewUnsupportedTypeError(name, s).WithCause(err)
	}
	return n, nil
}

// Compare orders two scalar values of the same kind. Byte sequences compare
// byte-wise, strings lexicographically, numbers numerically and booleans as
// 0/1.
func Compare(a, b any) (int, error) {
	if a == nil || b == nil {
		return 0, apperrors.NewUnsupportedTypeError("", nil).WithDetail("reason", "cannot compare nil values")
	}
	ka, kb := KindOf(a), KindOf(b)
	if ka == KindInvalid {
		return 0, apperrors.NewUnsupportedTypeError("", a)
	}
	if ka != kb {
		return 0, apperrors.NewUnsupportedTypeError("", b).
			WithDetail("reason", "cannot compare "+ka.String()+" with "+kb.String())
	}

	switch ka {
	case KindBytes:
		return bytes.Compare(a.([]byte), b.([]byte)), nil
	case KindString:
		return strings.Compare(a.(string), b.(string)), nil
	case KindBool:
		return boolToInt(a.(bool)) - boolToInt(b.(bool)), nil
	}
	return compareNumbers(a, b), nil
}

// Equal reports whether two scalar values of the same kind are equal.
func Equal(a, b any) (bool, error) {
	c, err := Compare(a, b)
	if err != nil {
		return false, err
	}
	return c == 0, nil
}

func compareNumbers(a, b any) int {
	ia, aInt := toInt64(a)
	ib, bInt := toInt64(b)
	if aInt && bInt {
		switch {
		case ia < ib:
			return -1
		case ia > ib:
			return 1
		}
		return 0
	}
	fa, _ := strconv.ParseFloat(formatNumber(a), 64)
	fb, _ := strconv.ParseFloat(formatNumber(b), 64)
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	}
	return 0
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Coerce converts a literal to the scalar store type declared for an
// attribute.
func Coerce(name string, v any, attrType schema.AttributeType) (types.AttributeValue, error) {
	kind := KindOf(v)
	switch attrType {
	case schema.AttributeTypeString:
		switch kind {
		case KindString:
			return &types.AttributeValueMemberS{Value: v.(string)}, nil
		case KindNumber:
			return &types.AttributeValueMemberS{Value: formatNumber(v)}, nil
		case KindBytes:
			return &types.AttributeValueMemberS{Value: string(v.([]byte))}, nil
		}
	case schema.AttributeTypeNumber:
		switch kind {
		case KindNumber:
			return &types.AttributeValueMemberN{Value: formatNumber(v)}, nil
		case KindString:
			if _, err := strconv.ParseFloat(v.(string), 64); err == nil {
				return &types.AttributeValueMemberN{Value: v.(string)}, nil
			}
		}
	case schema.AttributeTypeBinary:
		switch kind {
		case KindBytes:
			return &types.AttributeValueMemberB{Value: append([]byte(nil), v.([]byte)...)}, nil
		case KindString:
			return &types.AttributeValueMemberB{Value: []byte(v.(string))}, nil
		}
	}
	return nil, apperrors.NewUnsupportedTypeError(name, v).WithDetail("declaredType", string(attrType))
}

// ModelToItem converts a model to a store item. The "type" discriminator is
// implied by the table and is not stored; nil values are omitted.
func ModelToItem(m entities.Model) (map[string]types.AttributeValue, error) {
	item := make(map[string]types.AttributeValue, len(m))
	for name, v := range m {
		if name == entities.AttrType || v == nil {
			continue
		}
		av, err := encode(name, v)
		if err != nil {
			return nil, err
		}
		item[name] = av
	}
	return item, nil
}

// ItemToModel converts a store item read from the table of typeName.
func ItemToModel(typeName string, item map[string]types.AttributeValue) (entities.Model, error) {
	m := make(entities.Model, len(item)+1)
	for name, av := range item {
		v, err := FromAttribute(name, av)
		if err != nil {
			return nil, err
		}
		m[name] = v
	}
	m[entities.AttrType] = typeName
	return m, nil
}

// KeyMatches reports whether item carries the same values as key for every
// key attribute, comparing decoded model values rather than raw encodings.
func KeyMatches(key, item map[string]types.AttributeValue) bool {
	for name, kav := range key {
		iav, ok := item[name]
		if !ok {
			return false
		}
		kv, err := FromAttribute(name, kav)
		if err != nil {
			return false
		}
		iv, err := FromAttribute(name, iav)
		if err != nil {
			return false
		}
		eq, err := Equal(kv, iv)
		if err != nil || !eq {
			return false
		}
	}
	return true
}
