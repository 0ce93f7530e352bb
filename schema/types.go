package schema

// ProtoFile represents a single .proto file
type ProtoFile struct {
	Name       string     `json:"name"`       // file.proto
	Package    string     `json:"package"`    // package name
	Syntax     string     `json:"syntax"`     // proto2 or proto3
	Imports    []*Import  `json:"imports"`    // imported files
	Messages   []*Message `json:"messages"`   // message definitions
	Enums      []*Enum    `json:"enums"`      // enum definitions
	Services   []*Service `json:"services"`   // service definitions
	Extensions []*Field   `json:"extensions"` // top-level extend blocks
}

// Import represents an import statement
type Import struct {
	Path   string `json:"path"`   // "google/protobuf/timestamp.proto"
	Public bool   `json:"public"` // public import
	Weak   bool   `json:"weak"`   // weak import
}

// Message represents a protobuf message definition. Fields keep declaration
// order, which is also the encode order.
type Message struct {
	Name            string            `json:"name"`             // "User"
	FullName        string            `json:"full_name"`        // "pkg.User", set by the registry
	Syntax          string            `json:"syntax"`           // inherited from the file
	Fields          []*Field          `json:"fields"`           // message fields, oneof members included
	NestedTypes     []*Message        `json:"nested_types"`     // nested messages
	NestedEnums     []*Enum           `json:"nested_enums"`     // nested enums
	Extensions      []*Field          `json:"extensions"`       // extend blocks declared in this scope
	OneofGroups     []*Oneof          `json:"oneof_groups"`     // oneof groups
	ExtensionRanges []*ExtensionRange `json:"extension_ranges"` // extensions 100 to 199;

	index *fieldIndex
}

// Field represents a message field
type Field struct {
	Name         string     `json:"name"`          // "user_name"
	Number       int32      `json:"number"`        // 1
	Label        FieldLabel `json:"label"`         // optional, required, repeated
	Type         FieldType  `json:"type"`          // field type information
	DefaultValue string     `json:"default_value"` // default value literal (proto2)
	JsonName     string     `json:"json_name"`     // JSON field name
	Oneof        string     `json:"oneof"`         // oneof group name, empty if not in a oneof
	Packed       *bool      `json:"packed"`        // explicit [packed=...] option
	Extendee     string     `json:"extendee"`      // extended message name, extensions only
	FullName     string     `json:"full_name"`     // fully-qualified name, set by the registry for extensions

	resolved *fieldState
}

// Oneof represents a oneof group
type Oneof struct {
	Name   string   `json:"name"`   // "contact_method"
	Fields []*Field `json:"fields"` // filled in on Finalize
}

// ExtensionRange is an inclusive range of extension field numbers.
type ExtensionRange struct {
	Start int32 `json:"start"`
	End   int32 `json:"end"`
}

// FieldLabel represents field labels
type FieldLabel string

const (
	LabelOptional FieldLabel = "optional"
	LabelRequired FieldLabel = "required"
	LabelRepeated FieldLabel = "repeated"
)

// FieldType represents field type information
type FieldType struct {
	Kind          TypeKind      `json:"kind"`                     // primitive, message, enum, group, map, named
	PrimitiveType PrimitiveType `json:"primitive_type,omitempty"` // for primitive types
	TypeName      string        `json:"type_name,omitempty"`      // symbolic message/enum reference: "User", ".pkg.User"
	MapKey        *FieldType    `json:"map_key,omitempty"`        // for map key type
	MapValue      *FieldType    `json:"map_value,omitempty"`      // for map value type

	// Bound by the registry's resolve pass.
	Message *Message `json:"-"`
	Enum    *Enum    `json:"-"`
}

// TypeKind represents the kind of field type
type TypeKind string

const (
	KindPrimitive TypeKind = "primitive"
	KindMessage   TypeKind = "message"
	KindEnum      TypeKind = "enum"
	KindGroup     TypeKind = "group"
	KindMap       TypeKind = "map"
	// KindNamed is a reference whose target kind is not known yet. The
	// resolve pass turns it into KindMessage or KindEnum.
	KindNamed TypeKind = "named"
)

// PrimitiveType represents protobuf primitive types
type PrimitiveType string

const (
	TypeDouble   PrimitiveType = "double"
	TypeFloat    PrimitiveType = "float"
	TypeInt64    PrimitiveType = "int64"
	TypeUint64   PrimitiveType = "uint64"
	TypeInt32    PrimitiveType = "int32"
	TypeFixed64  PrimitiveType = "fixed64"
	TypeFixed32  PrimitiveType = "fixed32"
	TypeBool     PrimitiveType = "bool"
	TypeString   PrimitiveType = "string"
	TypeBytes    PrimitiveType = "bytes"
	TypeUint32   PrimitiveType = "uint32"
	TypeSfixed32 PrimitiveType = "sfixed32"
	TypeSfixed64 PrimitiveType = "sfixed64"
	TypeSint32   PrimitiveType = "sint32"
	TypeSint64   PrimitiveType = "sint64"
)

var packedEligible = map[PrimitiveType]struct{}{
	TypeDouble:   {},
	TypeFloat:    {},
	TypeInt64:    {},
	TypeUint64:   {},
	TypeInt32:    {},
	TypeFixed64:  {},
	TypeFixed32:  {},
	TypeBool:     {},
	TypeUint32:   {},
	TypeSfixed32: {},
	TypeSfixed64: {},
	TypeSint32:   {},
	TypeSint64:   {},
}

// IsPackedType checks and returns if the Primitive type is packed for repeated label
func IsPackedType(t PrimitiveType) bool {
	_, ok := packedEligible[t]
	return ok
}

// ParsePrimitiveType maps a .proto scalar keyword to its PrimitiveType.
func ParsePrimitiveType(name string) (PrimitiveType, bool) {
	t := PrimitiveType(name)
	if t == TypeString || t == TypeBytes || IsPackedType(t) {
		return t, true
	}
	return "", false
}

// IsLong reports whether values of t are 64 bits wide.
func (t PrimitiveType) IsLong() bool {
	switch t {
	case TypeInt64, TypeUint64, TypeSint64, TypeFixed64, TypeSfixed64:
		return true
	}
	return false
}

// IsValidMapKey reports whether t may be used as a map key type.
func (t PrimitiveType) IsValidMapKey() bool {
	switch t {
	case TypeDouble, TypeFloat, TypeBytes, "":
		return false
	}
	return true
}

// Enum represents an enum definition
type Enum struct {
	Name       string       `json:"name"`        // "Status"
	FullName   string       `json:"full_name"`   // "pkg.Status", set by the registry
	Values     []*EnumValue `json:"values"`      // enum values
	AllowAlias bool         `json:"allow_alias"` // allow_alias option
}

// EnumValue represents an enum value
type EnumValue struct {
	Name     string `json:"name"`      // "ACTIVE"
	Number   int32  `json:"number"`    // 1
	JsonName string `json:"json_name"` // JSON field name
}

// ValueByName returns the enum value with the given name.
func (e *Enum) ValueByName(name string) (*EnumValue, bool) {
	for _, v := range e.Values {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// ValueByNumber returns the first enum value declared with number n.
func (e *Enum) ValueByNumber(n int32) (*EnumValue, bool) {
	for _, v := range e.Values {
		if v.Number == n {
			return v, true
		}
	}
	return nil, false
}

// Default returns the number of the first declared value, which is the
// enum's implicit default.
func (e *Enum) Default() int32 {
	if len(e.Values) == 0 {
		return 0
	}
	return e.Values[0].Number
}

// Service represents a service definition
type Service struct {
	Name    string    `json:"name"`    // "UserService"
	Methods []*Method `json:"methods"` // service methods
}

// Method represents a service method
type Method struct {
	Name            string `json:"name"`             // "GetUser"
	InputType       string `json:"input_type"`       // "GetUserRequest"
	OutputType      string `json:"output_type"`      // "GetUserResponse"
	ClientStreaming bool   `json:"client_streaming"` // stream input
	ServerStreaming bool   `json:"server_streaming"` // stream output
}
