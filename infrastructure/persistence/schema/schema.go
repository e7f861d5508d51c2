// Package schema holds the read-only table definitions the query layer
// compiles against: attribute types, key schemas and secondary indexes.
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AttributeType is a scalar store type.
type AttributeType string

const (
	AttributeTypeString AttributeType = "S"
	AttributeTypeNumber AttributeType = "N"
	AttributeTypeBinary AttributeType = "B"
)

// KeyType is the role of an attribute within a key schema.
type KeyType string

const (
	KeyTypeHash  KeyType = "HASH"
	KeyTypeRange KeyType = "RANGE"
)

// DefaultKeyWidth is the byte width assumed for binary keys without an
// explicit width (a UUID).
const DefaultKeyWidth = 16

// AttributeDefinition declares the store type of an attribute. Width is the
// fixed byte length of binary keys and is used to build range sentinels.
type AttributeDefinition struct {
	Name  string        `yaml:"name" json:"name"`
	Type  AttributeType `yaml:"type" json:"type"`
	Width int           `yaml:"width,omitempty" json:"width,omitempty"`
}

// KeySchemaElement is one attribute of a key schema.
type KeySchemaElement struct {
	Name    string  `yaml:"name" json:"name"`
	KeyType KeyType `yaml:"keyType" json:"keyType"`
}

// Index is a key schema usable to satisfy a query. The primary key is
// represented as an Index with an empty name.
type Index struct {
	Name      string             `yaml:"name" json:"name"`
	KeySchema []KeySchemaElement `yaml:"keySchema" json:"keySchema"`
}

// IsPrimary reports whether the index is the table's primary key.
func (i Index) IsPrimary() bool {
	return i.Name == ""
}

// KeyType returns the role of the attribute in this index.
func (i Index) KeyType(name string) (KeyType, bool) {
	for _, el := range i.KeySchema {
		if el.Name == name {
			return el.KeyType, true
		}
	}
	return "", false
}

// HashKey returns the partition key attribute name.
func (i Index) HashKey() string {
	for _, el := range i.KeySchema {
		if el.KeyType == KeyTypeHash {
			return el.Name
		}
	}
	return ""
}

// RangeKey returns the sort key attribute name, or "".
func (i Index) RangeKey() string {
	for _, el := range i.KeySchema {
		if el.KeyType == KeyTypeRange {
			return el.Name
		}
	}
	return ""
}

// AttributeNames returns the key attribute names, hash key first.
func (i Index) AttributeNames() []string {
	names := make([]string, 0, len(i.KeySchema))
	if h := i.HashKey(); h != "" {
		names = append(names, h)
	}
	if r := i.RangeKey(); r != "" {
		names = append(names, r)
	}
	return names
}

// Table describes one store table holding models of a single type.
type Table struct {
	Name                   string                `yaml:"name" json:"name"`
	Type                   string                `yaml:"type,omitempty" json:"type,omitempty"`
	AttributeDefinitions   []AttributeDefinition `yaml:"attributeDefinitions" json:"attributeDefinitions"`
	KeySchema              []KeySchemaElement    `yaml:"keySchema" json:"keySchema"`
	LocalSecondaryIndexes  []Index               `yaml:"localSecondaryIndexes,omitempty" json:"localSecondaryIndexes,omitempty"`
	GlobalSecondaryIndexes []Index               `yaml:"globalSecondaryIndexes,omitempty" json:"globalSecondaryIndexes,omitempty"`
}

// ModelType returns the model type stored in the table, defaulting to the
// table name.
func (t *Table) ModelType() string {
	if t.Type != "" {
		return t.Type
	}
	return t.Name
}

// PrimaryKey returns the table's own key schema as an unnamed Index.
func (t *Table) PrimaryKey() Index {
	return Index{KeySchema: t.KeySchema}
}

// SecondaryIndexes returns local indexes followed by global indexes, each in
// declaration order.
func (t *Table) SecondaryIndexes() []Index {
	out := make([]Index, 0, len(t.LocalSecondaryIndexes)+len(t.GlobalSecondaryIndexes))
	out = append(out, t.LocalSecondaryIndexes...)
	out = append(out, t.GlobalSecondaryIndexes...)
	return out
}

// Attribute returns the declared definition of an attribute.
func (t *Table) Attribute(name string) (AttributeDefinition, bool) {
	for _, def := range t.AttributeDefinitions {
		if def.Name == name {
			return def, true
		}
	}
	return AttributeDefinition{}, false
}

// AttributeType returns the declared store type of an attribute.
func (t *Table) AttributeType(name string) (AttributeType, bool) {
	def, ok := t.Attribute(name)
	return def.Type, ok
}

// KeyWidth returns the byte width of a binary attribute.
func (t *Table) KeyWidth(name string) int {
	if def, ok := t.Attribute(name); ok && def.Width > 0 {
		return def.Width
	}
	return DefaultKeyWidth
}

// Validate checks that every key attribute is declared with a scalar type.
func (t *Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is required")
	}
	for _, def := range t.AttributeDefinitions {
		switch def.Type {
		case AttributeTypeString, AttributeTypeNumber, AttributeTypeBinary:
		default:
			return fmt.Errorf("table '%s': attribute '%s' has unsupported type '%s'", t.Name, def.Name, def.Type)
		}
	}
	indexes := append([]Index{t.PrimaryKey()}, t.SecondaryIndexes()...)
	for _, idx := range indexes {
		if idx.HashKey() == "" {
			return fmt.Errorf("table '%s': index '%s' has no HASH key", t.Name, idx.Name)
		}
		for _, el := range idx.KeySchema {
			if _, ok := t.Attribute(el.Name); !ok {
				return fmt.Errorf("table '%s': key attribute '%s' is not defined", t.Name, el.Name)
			}
		}
	}
	return nil
}

// Config is the full set of tables known to the query layer.
type Config struct {
	Tables []Table `yaml:"tables" json:"tables"`
}

// Parse decodes a YAML schema document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and decodes a YAML schema file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks every table and rejects duplicate model types.
func (c *Config) Validate() error {
	seen := make(map[string]string, len(c.Tables))
	for i := range c.Tables {
		t := &c.Tables[i]
		if err := t.Validate(); err != nil {
			return err
		}
		if other, dup := seen[t.ModelType()]; dup {
			return fmt.Errorf("type '%s' is mapped to both '%s' and '%s'", t.ModelType(), other, t.Name)
		}
		seen[t.ModelType()] = t.Name
	}
	return nil
}

// TableForType returns the table storing models of the given type.
func (c *Config) TableForType(typeName string) (*Table, bool) {
	for i := range c.Tables {
		if c.Tables[i].ModelType() == typeName {
			return &c.Tables[i], true
		}
	}
	return nil, false
}

// Table returns a table by name.
func (c *Config) Table(name string) (*Table, bool) {
	for i := range c.Tables {
		if c.Tables[i].Name == name {
			return &c.Tables[i], true
		}
	}
	return nil, false
}
