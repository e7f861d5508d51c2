package entities

import (
	"fmt"
	"sort"
)

// Reserved attribute names shared by every model.
const (
	AttrType  = "type"
	AttrID    = "id"
	AttrOutID = "outID"
	AttrInID  = "inID"
)

// Model is a single node or edge: attribute names mapped to scalar values,
// discriminated by the required "type" attribute.
//
// A node model carries "id". An edge model carries "outID" and "inID" and no
// "id". Values are []byte, string, numbers, bool or homogeneous slices of the
// first three.
type Model map[string]any

// NewNode creates a node model of the given type.
func NewNode(typeName string, id any) Model {
	return Model{AttrType: typeName, AttrID: id}
}

// NewEdge creates an edge model of the given type.
func NewEdge(typeName string, outID, inID any) Model {
	return Model{AttrType: typeName, AttrOutID: outID, AttrInID: inID}
}

// Type returns the model's type discriminator, or "" when absent.
func (m Model) Type() string {
	t, _ := m[AttrType].(string)
	return t
}

// ID returns the node key value.
func (m Model) ID() any { return m[AttrID] }

// OutID returns the edge's source node key value.
func (m Model) OutID() any { return m[AttrOutID] }

// InID returns the edge's target node key value.
func (m Model) InID() any { return m[AttrInID] }

// IsNode reports whether the model has the node shape.
func (m Model) IsNode() bool {
	_, hasID := m[AttrID]
	return hasID && !m.hasEdgeKey()
}

// IsEdge reports whether the model has the edge shape.
func (m Model) IsEdge() bool {
	_, hasID := m[AttrID]
	_, hasOut := m[AttrOutID]
	_, hasIn := m[AttrInID]
	return !hasID && hasOut && hasIn
}

func (m Model) hasEdgeKey() bool {
	_, hasOut := m[AttrOutID]
	_, hasIn := m[AttrInID]
	return hasOut || hasIn
}

// KeyAttributes returns the primary key attribute names for the model shape.
func (m Model) KeyAttributes() []string {
	if m.IsEdge() {
		return []string{AttrOutID, AttrInID}
	}
	return []string{AttrID}
}

// Validate checks the type discriminator and the node/edge shape invariant.
func (m Model) Validate() error {
	if m.Type() == "" {
		return fmt.Errorf("model is missing a '%s' attribute", AttrType)
	}
	if !m.IsNode() && !m.IsEdge() {
		return fmt.Errorf("model of type '%s' must have either '%s' or both '%s' and '%s'",
			m.Type(), AttrID, AttrOutID, AttrInID)
	}
	for _, name := range m.KeyAttributes() {
		if m[name] == nil {
			return fmt.Errorf("model of type '%s' has a nil '%s'", m.Type(), name)
		}
	}
	return nil
}

// Clone returns a shallow copy of the model.
func (m Model) Clone() Model {
	if m == nil {
		return nil
	}
	out := make(Model, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// AttributeNames returns the model's attribute names in sorted order.
func (m Model) AttributeNames() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
