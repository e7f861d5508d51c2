// Package globalid encodes node and edge keys as opaque, type-tagged object
// identifiers following the relay global id convention.
package globalid

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/entities"
	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
)

// Separator joins the out and in halves of an edge identifier. It may not
// appear inside a string key component.
const Separator = "___"

// Key kind tags.
const (
	TagBytes  = "B"
	TagString = "S"
	TagNumber = "N"
)

// IdentifierCodec converts models to and from opaque identifiers.
type IdentifierCodec interface {
	Encode(m entities.Model) (string, error)
	Decode(id string) (entities.Model, error)
}

// Codec is the global id IdentifierCodec.
type Codec struct{}

var _ IdentifierCodec = Codec{}

// New returns the global id codec.
func New() Codec {
	return Codec{}
}

// Encode implements IdentifierCodec.
func (Codec) Encode(m entities.Model) (string, error) {
	return Encode(m)
}

// Decode implements IdentifierCodec.
func (Codec) Decode(id string) (entities.Model, error) {
	return Decode(id)
}

// ToGlobalID combines a type name and a local id.
func ToGlobalID(typeName, localID string) string {
	return base64.StdEncoding.EncodeToString([]byte(typeName + ":" + localID))
}

// FromGlobalID splits a global id into its type name and local id.
func FromGlobalID(globalID string) (typeName, localID string, err error) {
	data, err := base64.StdEncoding.DecodeString(globalID)
	if err != nil {
		return "", "", apperrors.NewInvalidIdentifierError(globalID, "identifier is not valid base64").WithCause(err)
	}
	typeName, localID, ok := strings.Cut(string(data), ":")
	if !ok || typeName == "" {
		return "", "", apperrors.NewInvalidIdentifierError(globalID, "identifier has no type")
	}
	return typeName, localID, nil
}

// Encode returns the global id of a node or edge model.
func Encode(m entities.Model) (string, error) {
	if m.Type() == "" {
		return "", apperrors.NewInvalidIdentifierError("", "model has no type")
	}

	switch {
	case m.IsNode():
		local, err := encodeKey(entities.AttrID, m.ID())
		if err != nil {
			return "", err
		}
		return ToGlobalID(m.Type(), local), nil
	case m.IsEdge():
		out, err := encodeKey(entities.AttrOutID, m.OutID())
		if err != nil {
			return "", err
		}
		in, err := encodeKey(entities.AttrInID, m.InID())
		if err != nil {
			return "", err
		}
		return ToGlobalID(m.Type(), out+Separator+in), nil
	}
	return "", apperrors.NewInvalidIdentifierError("", fmt.Sprintf("model of type '%s' is neither a node nor an edge", m.Type()))
}

// Decode returns the minimal model (type plus key attributes) identified by a
// global id.
func Decode(globalID string) (entities.Model, error) {
	typeName, local, err := FromGlobalID(globalID)
	if err != nil {
		return nil, err
	}

	if !strings.Contains(local, Separator) {
		id, err := decodeKey(globalID, local)
		if err != nil {
			return nil, err
		}
		return entities.NewNode(typeName, id), nil
	}

	parts := strings.Split(local, Separator)
	if len(parts) != 2 {
		return nil, apperrors.NewInvalidIdentifierError(globalID, "edge identifier must have exactly two keys")
	}
	out, err := decodeKey(globalID, parts[0])
	if err != nil {
		return nil, err
	}
	in, err := decodeKey(globalID, parts[1])
	if err != nil {
		return nil, err
	}
	return entities.NewEdge(typeName, out, in), nil
}

func encodeKey(name string, v any) (string, error) {
	switch v := v.(type) {
	case []byte:
		return TagBytes + base64.StdEncoding.EncodeToString(v), nil
	case string:
		if strings.Contains(v, Separator) {
			return "", apperrors.NewInvalidIdentifierError(v, fmt.Sprintf("'%s' may not contain '%s'", name, Separator))
		}
		return TagString + v, nil
	case int:
		return TagNumber + strconv.FormatInt(int64(v), 10), nil
	case int32:
		return TagNumber + strconv.FormatInt(int64(v), 10), nil
	case int64:
		return TagNumber + strconv.FormatInt(v, 10), nil
	case uint32:
		return TagNumber + strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return TagNumber + strconv.FormatUint(v, 10), nil
	case float64:
		return TagNumber + strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return "", apperrors.NewUnsupportedTypeError(name, v)
}

func decodeKey(globalID, tagged string) (any, error) {
	if tagged == "" {
		return nil, apperrors.NewInvalidIdentifierError(globalID, "key is empty")
	}
	tag, value := tagged[:1], tagged[1:]
	switch tag {
	case TagBytes:
		b, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, apperrors.NewInvalidIdentifierError(globalID, "binary key is not valid base64").WithCause(err)
		}
		return b, nil
	case TagString:
		return value, nil
	case TagNumber:
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, apperrors.NewInvalidIdentifierError(globalID, "numeric key is not a number").WithCause(err)
		}
		return f, nil
	}
	return nil, apperrors.NewInvalidIdentifierError(globalID, fmt.Sprintf("unknown key tag '%s'", tag))
}
