package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/entities"
	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
)

// KeyOf builds the store key of a model: its primary key attributes plus any
// extra key attributes (for example the range key of the index a page was
// read from). Only scalar B, S and N values may appear in a key.
func KeyOf(m entities.Model, extra ...string) (map[string]types.AttributeValue, error) {
	names := append(m.KeyAttributes(), extra...)
	key := make(map[string]types.AttributeValue, len(names))
	for _, name := range names {
		if name == "" || name == entities.AttrType {
			continue
		}
		if _, done := key[name]; done {
			continue
		}
		v, ok := m[name]
		if !ok || v == nil {
			return nil, apperrors.NewInvalidIdentifierError("", fmt.Sprintf("model of type '%s' has no value for key attribute '%s'", m.Type(), name))
		}
		switch KindOf(v) {
		case KindBytes, KindString, KindNumber:
		default:
			return nil, apperrors.NewUnsupportedTypeError(name, v)
		}
		av, err := encode(name, v)
		if err != nil {
			return nil, err
		}
		key[name] = av
	}
	return key, nil
}

// ToCursor encodes the store key of a model as an opaque pagination cursor.
func ToCursor(m entities.Model, extra ...string) (string, error) {
	key, err := KeyOf(m, extra...)
	if err != nil {
		return "", err
	}
	return KeyToCursor(key)
}

// KeyToCursor encodes a store key as base64 JSON. Byte sequences are written
// as integer arrays so the cursor survives any JSON transport unchanged.
func KeyToCursor(key map[string]types.AttributeValue) (string, error) {
	doc := make(map[string]map[string]any, len(key))
	for name, av := range key {
		switch av := av.(type) {
		case *types.AttributeValueMemberB:
			ints := make([]int, len(av.Value))
			for i, b := range av.Value {
				ints[i] = int(b)
			}
			doc[name] = map[string]any{"B": ints}
		case *types.AttributeValueMemberS:
			doc[name] = map[string]any{"S": av.Value}
		case *types.AttributeValueMemberN:
			doc[name] = map[string]any{"N": av.Value}
		default:
			return "", apperrors.NewUnsupportedTypeError(name, av)
		}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", apperrors.NewInternalError("failed to encode cursor").WithCause(err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// FromCursor decodes a cursor back into the store key it was built from.
func FromCursor(cursor string) (map[string]types.AttributeValue, error) {
	data, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, apperrors.NewInvalidIdentifierError(cursor, "cursor is not valid base64").WithCause(err)
	}

	var doc map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.NewInvalidIdentifierError(cursor, "cursor is not a key document").WithCause(err)
	}
	if len(doc) == 0 {
		return nil, apperrors.NewInvalidIdentifierError(cursor, "cursor has no key attributes")
	}

	key := make(map[string]types.AttributeValue, len(doc))
	for name, typed := range doc {
		if len(typed) != 1 {
			return nil, apperrors.NewInvalidIdentifierError(cursor, fmt.Sprintf("attribute '%s' must have exactly one type", name))
		}
		for tag, raw := range typed {
			av, err := decodeCursorValue(tag, raw)
			if err != nil {
				return nil, apperrors.NewInvalidIdentifierError(cursor, fmt.Sprintf("attribute '%s': %v", name, err))
			}
			key[name] = av
		}
	}
	return key, nil
}

func decodeCursorValue(tag string, raw json.RawMessage) (types.AttributeValue, error) {
	switch tag {
	case "B":
		var ints []int
		if err := json.Unmarshal(raw, &ints); err != nil {
			return nil, err
		}
		b := make([]byte, len(ints))
		for i, n := range ints {
			if n < 0 || n > 255 {
				return nil, fmt.Errorf("byte value %d out of range", n)
			}
			b[i] = byte(n)
		}
		return &types.AttributeValueMemberB{Value: b}, nil
	case "S":
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberS{Value: s}, nil
	case "N":
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberN{Value: s}, nil
	}
	return nil, fmt.Errorf("unknown type tag '%s'", tag)
}
