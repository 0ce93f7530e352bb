// Package pbcore provides schema-aware protobuf encoding and decoding
// without generated code. Schemas come from .proto files or compiled
// descriptor sets; messages cross the API as plain Go maps, dynamic
// *message.Message values or structs.
package pbcore

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/wanglam/pbcore/message"
	"github.com/wanglam/pbcore/registry"
	"github.com/wanglam/pbcore/schema"
)

// ===== SCHEMA-AWARE API =====

// Pbcore provides schema-aware protobuf operations without generated code.
// Load a schema once; afterwards every method is safe for concurrent use.
type Pbcore struct {
	registry *registry.Registry
	decode   message.DecodeOptions
	object   message.ObjectOptions
	logger   zerolog.Logger
}

type config struct {
	protoDirs []string
	logger    zerolog.Logger
	maxDepth  int
	object    message.ObjectOptions
}

// Option configures New.
type Option func(*config)

// WithProtoDirectories adds directories searched for imported .proto files.
func WithProtoDirectories(dirs ...string) Option {
	return func(c *config) {
		c.protoDirs = append(c.protoDirs, dirs...)
	}
}

// WithLogger sets the logger used while loading schemas.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMaxDepth bounds message nesting on decode.
func WithMaxDepth(depth int) Option {
	return func(c *config) {
		c.maxDepth = depth
	}
}

// WithObjectOptions sets how Parse renders decoded messages.
func WithObjectOptions(opts message.ObjectOptions) Option {
	return func(c *config) {
		c.object = opts
	}
}

// New creates a new Pbcore instance
func New(opts ...Option) *Pbcore {
	c := &config{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return &Pbcore{
		registry: registry.NewRegistry(
			registry.WithProtoDirectories(c.protoDirs...),
			registry.WithLogger(c.logger),
		),
		decode: message.DecodeOptions{MaxDepth: c.maxDepth},
		object: c.object,
		logger: c.logger,
	}
}

// Load parses .proto files or directories and resolves the schema. It can
// be called once; the resolved schema is read-only.
func (p *Pbcore) Load(paths ...string) error {
	for _, path := range paths {
		if err := p.registry.LoadSchema(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return p.registry.Resolve()
}

// LoadDescriptorSet adds a compiled descriptor set and resolves the schema.
func (p *Pbcore) LoadDescriptorSet(set *descriptorpb.FileDescriptorSet) error {
	if err := p.registry.AddFileDescriptorSet(set); err != nil {
		return err
	}
	return p.registry.Resolve()
}

// LoadDescriptorSetFile reads the output of protoc --descriptor_set_out and
// resolves the schema.
func (p *Pbcore) LoadDescriptorSetFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read descriptor set: %w", err)
	}
	set := &descriptorpb.FileDescriptorSet{}
	if err := proto.Unmarshal(data, set); err != nil {
		return fmt.Errorf("failed to parse descriptor set %s: %w", path, err)
	}
	p.logger.Debug().Str("path", path).Int("files", len(set.GetFile())).Msg("loaded descriptor set")
	return p.LoadDescriptorSet(set)
}

// MessageType returns the resolved descriptor of a message type.
func (p *Pbcore) MessageType(messageType string) (*schema.Message, error) {
	msg, err := p.registry.GetMessage(messageType)
	if err != nil {
		return nil, fmt.Errorf("message type not found: %s: %w", messageType, err)
	}
	return msg, nil
}

// NewMessage creates an empty dynamic message.
func (p *Pbcore) NewMessage(messageType string) (*message.Message, error) {
	msg, err := p.MessageType(messageType)
	if err != nil {
		return nil, err
	}
	return message.New(msg), nil
}

// Marshal encodes a map to protobuf bytes using schema information
func (p *Pbcore) Marshal(data map[string]interface{}, messageType string) ([]byte, error) {
	msg, err := p.MessageType(messageType)
	if err != nil {
		return nil, err
	}
	m, err := message.FromObject(msg, data)
	if err != nil {
		return nil, err
	}
	return message.Marshal(m), nil
}

// Encode returns the wire form of a dynamic message.
func (p *Pbcore) Encode(m *message.Message) []byte {
	return message.Marshal(m)
}

// Decode decodes protobuf bytes into a dynamic message.
func (p *Pbcore) Decode(data []byte, messageType string) (*message.Message, error) {
	msg, err := p.MessageType(messageType)
	if err != nil {
		return nil, err
	}
	return p.decode.Unmarshal(data, msg)
}

// Parse decodes protobuf bytes into a map, rendered with the instance's
// object options.
func (p *Pbcore) Parse(data []byte, messageType string) (map[string]interface{}, error) {
	m, err := p.Decode(data, messageType)
	if err != nil {
		return nil, err
	}
	return message.ToObject(m, p.object), nil
}

// Verify reports whether data could be encoded as messageType.
func (p *Pbcore) Verify(data map[string]interface{}, messageType string) error {
	msg, err := p.MessageType(messageType)
	if err != nil {
		return err
	}
	return message.Verify(msg, data)
}

// Unmarshal decodes protobuf bytes into a Go struct using reflection. The
// message type is the struct's type name. Struct fields match message
// fields by json tag, then by name ignoring case and underscores.
func (p *Pbcore) Unmarshal(data []byte, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("unmarshal target must be a pointer to struct")
	}

	m, err := p.Decode(data, rv.Elem().Type().Name())
	if err != nil {
		return err
	}
	return p.mapToStruct(message.ToObject(m, message.ObjectOptions{}), rv.Elem())
}

// mapToStruct maps parsed result to struct fields
func (p *Pbcore) mapToStruct(data map[string]interface{}, rv reflect.Value) error {
	byKey := make(map[string]interface{}, len(data))
	for k, v := range data {
		byKey[foldName(k)] = v
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fieldValue := rv.Field(i)

		if !fieldValue.CanSet() {
			continue
		}

		name := field.Name
		if tag, _, _ := strings.Cut(field.Tag.Get("json"), ","); tag != "" && tag != "-" {
			name = tag
		}
		value, ok := data[name]
		if !ok {
			value, ok = byKey[foldName(name)]
		}
		if !ok {
			continue
		}
		if err := p.setFieldValue(fieldValue, value); err != nil {
			return fmt.Errorf("failed to set field %s: %v", field.Name, err)
		}
	}
	return nil
}

// setFieldValue sets a struct field with type conversion
func (p *Pbcore) setFieldValue(fieldValue reflect.Value, value interface{}) error {
	if value == nil {
		return nil
	}

	sourceValue := reflect.ValueOf(value)
	if sourceValue.Type().AssignableTo(fieldValue.Type()) {
		fieldValue.Set(sourceValue)
		return nil
	}

	switch src := value.(type) {
	case map[string]interface{}:
		switch {
		case fieldValue.Kind() == reflect.Struct:
			return p.mapToStruct(src, fieldValue)
		case fieldValue.Kind() == reflect.Ptr && fieldValue.Type().Elem().Kind() == reflect.Struct:
			target := reflect.New(fieldValue.Type().Elem())
			if err := p.mapToStruct(src, target.Elem()); err != nil {
				return err
			}
			fieldValue.Set(target)
			return nil
		case fieldValue.Kind() == reflect.Map && fieldValue.Type().Key().Kind() == reflect.String:
			out := reflect.MakeMapWithSize(fieldValue.Type(), len(src))
			for k, v := range src {
				elem := reflect.New(fieldValue.Type().Elem()).Elem()
				if err := p.setFieldValue(elem, v); err != nil {
					return fmt.Errorf("key %s: %v", k, err)
				}
				out.SetMapIndex(reflect.ValueOf(k).Convert(fieldValue.Type().Key()), elem)
			}
			fieldValue.Set(out)
			return nil
		}
	case []interface{}:
		if fieldValue.Kind() == reflect.Slice {
			out := reflect.MakeSlice(fieldValue.Type(), len(src), len(src))
			for i, v := range src {
				if err := p.setFieldValue(out.Index(i), v); err != nil {
					return fmt.Errorf("index %d: %v", i, err)
				}
			}
			fieldValue.Set(out)
			return nil
		}
	}

	// integers convert to string as runes, which is never what a field means
	numericToString := fieldValue.Kind() == reflect.String &&
		sourceValue.Kind() != reflect.String && sourceValue.Kind() != reflect.Slice
	if !numericToString && sourceValue.Type().ConvertibleTo(fieldValue.Type()) {
		fieldValue.Set(sourceValue.Convert(fieldValue.Type()))
		return nil
	}

	return fmt.Errorf("cannot convert %T to %s", value, fieldValue.Type())
}

// foldName lowercases a field name and drops underscores, so user_id,
// userId and UserID all match.
func foldName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}

// ===== REGISTRY ACCESS =====

func (p *Pbcore) Registry() *registry.Registry { return p.registry }
func (p *Pbcore) ListMessages() []string       { return p.registry.ListMessages() }
func (p *Pbcore) ListEnums() []string          { return p.registry.ListEnums() }
func (p *Pbcore) ListServices() []string       { return p.registry.ListServices() }
func (p *Pbcore) ListExtensions() []string     { return p.registry.ListExtensions() }
