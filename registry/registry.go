package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wanglam/pbcore/schema"
)

// Registry stores the schema of the protobuf messages. Files are added first;
// Resolve then binds every symbolic type reference in one pass. Once resolved
// the registry is read-only and may be shared between goroutines.
type Registry struct {
	ProtoDirectories []string

	files      []*schema.ProtoFile
	messages   map[string]*schema.Message // fully qualified name -> message
	enums      map[string]*schema.Enum    // fully qualified name -> enum
	services   map[string]*schema.Service // fully qualified name -> service
	extensions map[string]*extensionDecl  // fully qualified name -> extension
	extOrder   []*extensionDecl

	pending  []binding
	resolved bool
	added    []symbol // registered by the AddFile in progress

	loaded map[string]struct{} // .proto files already parsed
	logger zerolog.Logger
}

// binding is a type reference waiting for Resolve.
type binding struct {
	holder *schema.FieldType
	name   string // symbolic name as written
	scope  string // fully-qualified enclosing scope
	owner  string // "pkg.Msg.field", for error messages
}

// symbol names one entry of the registry tables.
type symbol struct {
	kind string // "message", "enum", "service" or "extension"
	name string
}

type extensionDecl struct {
	field    *schema.Field
	scope    string
	proto3   bool
	extendee *schema.Message
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for load and resolve milestones.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithProtoDirectories sets the directories searched for imported .proto files.
func WithProtoDirectories(dirs ...string) Option {
	return func(r *Registry) {
		r.ProtoDirectories = append(r.ProtoDirectories, dirs...)
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		messages:   make(map[string]*schema.Message),
		enums:      make(map[string]*schema.Enum),
		services:   make(map[string]*schema.Service),
		extensions: make(map[string]*extensionDecl),
		loaded:     make(map[string]struct{}),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddFile registers every definition of file under its fully-qualified name
// and stages its type references. Nothing is bound until Resolve. A file
// that fails to register leaves the registry as it was.
func (r *Registry) AddFile(file *schema.ProtoFile) error {
	if r.resolved {
		return ErrSealed
	}
	if file.Syntax == "" {
		file.Syntax = "proto2"
	}
	pending, extOrder := len(r.pending), len(r.extOrder)
	r.added = r.added[:0]
	if err := r.addFile(file); err != nil {
		r.forget(r.added)
		r.pending = r.pending[:pending]
		r.extOrder = r.extOrder[:extOrder]
		return err
	}

	r.files = append(r.files, file)
	r.logger.Debug().
		Str("file", file.Name).
		Str("package", file.Package).
		Int("messages", len(file.Messages)).
		Int("pending", len(r.pending)).
		Msg("schema file added")
	return nil
}

func (r *Registry) forget(symbols []symbol) {
	for _, sym := range symbols {
		switch sym.kind {
		case "message":
			delete(r.messages, sym.name)
		case "enum":
			delete(r.enums, sym.name)
		case "service":
			delete(r.services, sym.name)
		case "extension":
			delete(r.extensions, sym.name)
		}
	}
}

func (r *Registry) addFile(file *schema.ProtoFile) error {
	pkg := file.Package
	proto3 := file.Syntax == "proto3"

	for _, msg := range file.Messages {
		if err := r.registerMessage(pkg, msg, file.Syntax); err != nil {
			return err
		}
	}
	for _, enum := range file.Enums {
		if err := r.registerEnum(pkg, enum); err != nil {
			return err
		}
	}
	for _, service := range file.Services {
		name := fullName(pkg, service.Name)
		if _, ok := r.services[name]; ok {
			return fmt.Errorf("duplicate service %s", name)
		}
		r.services[name] = service
		r.added = append(r.added, symbol{"service", name})
	}
	for _, ext := range file.Extensions {
		if err := r.registerExtension(pkg, ext, proto3); err != nil {
			return err
		}
	}
	return nil
}

// registerMessage registers a message, its nested definitions and the type
// references of its fields.
func (r *Registry) registerMessage(scope string, msg *schema.Message, syntax string) error {
	name := fullName(scope, msg.Name)
	if err := r.checkFree(name); err != nil {
		return err
	}
	msg.FullName = name
	msg.Syntax = syntax
	r.messages[name] = msg
	r.added = append(r.added, symbol{"message", name})

	for _, f := range msg.Fields {
		r.stage(&f.Type, name, name+"."+f.Name)
	}
	for _, nested := range msg.NestedTypes {
		if err := r.registerMessage(name, nested, syntax); err != nil {
			return err
		}
	}
	for _, enum := range msg.NestedEnums {
		if err := r.registerEnum(name, enum); err != nil {
			return err
		}
	}
	for _, ext := range msg.Extensions {
		if err := r.registerExtension(name, ext, syntax == "proto3"); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) registerEnum(scope string, enum *schema.Enum) error {
	name := fullName(scope, enum.Name)
	if err := r.checkFree(name); err != nil {
		return err
	}
	enum.FullName = name
	r.enums[name] = enum
	r.added = append(r.added, symbol{"enum", name})
	return nil
}

func (r *Registry) registerExtension(scope string, f *schema.Field, proto3 bool) error {
	if f.Extendee == "" {
		return fmt.Errorf("extension %s has no extendee", fullName(scope, f.Name))
	}
	f.FullName = fullName(scope, f.Name)
	if _, ok := r.extensions[f.FullName]; ok {
		return fmt.Errorf("duplicate extension %s", f.FullName)
	}
	decl := &extensionDecl{field: f, scope: scope, proto3: proto3}
	r.extensions[f.FullName] = decl
	r.added = append(r.added, symbol{"extension", f.FullName})
	r.extOrder = append(r.extOrder, decl)
	r.stage(&f.Type, scope, f.FullName)
	return nil
}

func (r *Registry) checkFree(name string) error {
	if _, ok := r.messages[name]; ok {
		return fmt.Errorf("duplicate symbol %s", name)
	}
	if _, ok := r.enums[name]; ok {
		return fmt.Errorf("duplicate symbol %s", name)
	}
	return nil
}

// stage records a pending binding for every symbolic reference in ft.
func (r *Registry) stage(ft *schema.FieldType, scope, owner string) {
	switch ft.Kind {
	case schema.KindMessage, schema.KindEnum, schema.KindGroup, schema.KindNamed:
		if ft.Message == nil && ft.Enum == nil {
			r.pending = append(r.pending, binding{holder: ft, name: ft.TypeName, scope: scope, owner: owner})
		}
	case schema.KindMap:
		if ft.MapValue != nil {
			r.stage(ft.MapValue, scope, owner+".value")
		}
	}
}

// Resolve binds every staged reference, finalizes all descriptors and
// attaches extensions to the messages they extend. On success the registry
// becomes read-only; on failure it returns a *SchemaResolutionError and
// stays unresolved.
func (r *Registry) Resolve() error {
	if r.resolved {
		return nil
	}

	names := make(map[string]struct{}, len(r.messages)+len(r.enums))
	for name := range r.messages {
		names[name] = struct{}{}
	}
	for name := range r.enums {
		names[name] = struct{}{}
	}

	var problems []string
	for _, b := range r.pending {
		if err := r.bind(b, names); err != nil {
			problems = append(problems, err.Error())
		}
	}

	for _, decl := range r.extOrder {
		target, err := getReferencedType(decl.field.Extendee, decl.scope, names)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: unresolved extendee %q", decl.field.FullName, decl.field.Extendee))
			continue
		}
		msg, ok := r.messages[target]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: extendee %s is not a message", decl.field.FullName, target))
			continue
		}
		decl.extendee = msg
	}

	if len(problems) > 0 {
		return &SchemaResolutionError{Problems: problems}
	}

	for _, name := range r.sortedMessageNames() {
		if err := r.messages[name].Finalize(); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return &SchemaResolutionError{Problems: problems}
	}

	for _, decl := range r.extOrder {
		if err := decl.field.Finalize(decl.proto3); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", decl.field.FullName, err))
			continue
		}
		if err := decl.extendee.AddExtension(decl.field); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return &SchemaResolutionError{Problems: problems}
	}

	bound := len(r.pending)
	r.pending = nil
	r.resolved = true
	r.logger.Debug().
		Int("files", len(r.files)).
		Int("messages", len(r.messages)).
		Int("enums", len(r.enums)).
		Int("extensions", len(r.extensions)).
		Int("bindings", bound).
		Msg("schema resolved")
	return nil
}

func (r *Registry) bind(b binding, names map[string]struct{}) error {
	target, err := getReferencedType(b.name, b.scope, names)
	if err != nil {
		return fmt.Errorf("%s: unresolved type %q", b.owner, b.name)
	}

	if msg, ok := r.messages[target]; ok {
		switch b.holder.Kind {
		case schema.KindEnum:
			return fmt.Errorf("%s: %s is a message, not an enum", b.owner, target)
		case schema.KindNamed:
			b.holder.Kind = schema.KindMessage
		}
		b.holder.Message = msg
		return nil
	}

	enum := r.enums[target]
	switch b.holder.Kind {
	case schema.KindMessage, schema.KindGroup:
		return fmt.Errorf("%s: %s is an enum, not a message", b.owner, target)
	}
	b.holder.Kind = schema.KindEnum
	b.holder.Enum = enum
	return nil
}

// Resolved reports whether Resolve has completed successfully.
func (r *Registry) Resolved() bool {
	return r.resolved
}

// GetMessage retrieves a message definition by name. Names may be fully
// qualified (with or without a leading dot) or a unique suffix.
func (r *Registry) GetMessage(name string) (*schema.Message, error) {
	if !r.resolved {
		return nil, ErrNotResolved
	}
	key, err := lookup(r.messages, name)
	if err != nil {
		return nil, fmt.Errorf("message %w", err)
	}
	return r.messages[key], nil
}

// GetEnum retrieves an enum definition by name
func (r *Registry) GetEnum(name string) (*schema.Enum, error) {
	if !r.resolved {
		return nil, ErrNotResolved
	}
	key, err := lookup(r.enums, name)
	if err != nil {
		return nil, fmt.Errorf("enum %w", err)
	}
	return r.enums[key], nil
}

// GetService retrieves a service definition by name
func (r *Registry) GetService(name string) (*schema.Service, error) {
	key, err := lookup(r.services, name)
	if err != nil {
		return nil, fmt.Errorf("service %w", err)
	}
	return r.services[key], nil
}

// GetExtension retrieves an extension field by fully-qualified name.
func (r *Registry) GetExtension(name string) (*schema.Field, error) {
	if !r.resolved {
		return nil, ErrNotResolved
	}
	decl, ok := r.extensions[strings.TrimPrefix(name, ".")]
	if !ok {
		return nil, fmt.Errorf("extension not found: %s", name)
	}
	return decl.field, nil
}

// lookup finds name in table exactly or as a unique dotted suffix.
func lookup[T any](table map[string]T, name string) (string, error) {
	name = strings.TrimPrefix(name, ".")
	if _, exists := table[name]; exists {
		return name, nil
	}

	var matches []string
	for fullName := range table {
		if strings.HasSuffix(fullName, "."+name) {
			matches = append(matches, fullName)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("not found: %s", name)
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", fmt.Errorf("name %s is ambiguous: %s", name, strings.Join(matches, ", "))
	}
}

// ListMessages returns all registered message names
func (r *Registry) ListMessages() []string {
	return r.sortedMessageNames()
}

// ListEnums returns all registered enum names
func (r *Registry) ListEnums() []string {
	return sortedKeys(r.enums)
}

// ListServices returns all registered service names
func (r *Registry) ListServices() []string {
	return sortedKeys(r.services)
}

// ListExtensions returns all registered extension names
func (r *Registry) ListExtensions() []string {
	return sortedKeys(r.extensions)
}

func (r *Registry) sortedMessageNames() []string {
	return sortedKeys(r.messages)
}

func sortedKeys[T any](table map[string]T) []string {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
