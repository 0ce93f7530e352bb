package message

import (
	"encoding/base64"
	"fmt"
	"regexp"

	"github.com/wanglam/pbcore/schema"
)

var (
	integerKeyRE  = regexp.MustCompile(`^-?(?:0|[1-9][0-9]*)$`)
	unsignedKeyRE = regexp.MustCompile(`^(?:0|[1-9][0-9]*)$`)
)

// Verify checks that v could be encoded as a message of type desc. v is a
// plain object (map[string]interface{} or any Go map with string keys) or a
// *Message. It returns nil when valid and a *ValidationError naming the
// first offending field otherwise.
func Verify(desc *schema.Message, v interface{}) error {
	if m, ok := v.(*Message); ok {
		return verifyMessage(desc, m, "")
	}
	obj, ok := asObject(v)
	if !ok {
		return invalid("", "object expected")
	}
	return verifyObject(desc, obj, "")
}

// verifyMessage checks what Set cannot: the message type, required fields
// and the same again for every submessage.
func verifyMessage(desc *schema.Message, m *Message, path string) error {
	if m.desc != desc {
		return invalid(path, "object expected")
	}
	for _, f := range desc.Fields {
		v, ok := m.get(f)
		if !ok {
			if f.IsRequired() {
				return invalid(path, fmt.Sprintf("missing required '%s'", f.Name))
			}
			continue
		}
		if err := verifyStoredValue(f, v, joinPath(path, f.Name)); err != nil {
			return err
		}
	}
	for _, f := range desc.ExtensionFields() {
		if v, ok := m.ext[f.Number]; ok {
			if err := verifyStoredValue(f, v, joinPath(path, f.Key())); err != nil {
				return err
			}
		}
	}
	return nil
}

func verifyStoredValue(f *schema.Field, v interface{}, path string) error {
	switch t := v.(type) {
	case *Message:
		return verifyMessage(t.desc, t, path)
	case []interface{}:
		for _, elem := range t {
			if err := verifyStoredElem(&f.Type, elem, path); err != nil {
				return err
			}
		}
	case *Map:
		for _, e := range t.sorted() {
			if err := verifyStoredElem(f.Type.MapValue, e.Value, path); err != nil {
				return err
			}
		}
	default:
		return verifyStoredElem(&f.Type, v, path)
	}
	return nil
}

// verifyStoredElem checks one list element, map value or singular value.
func verifyStoredElem(ft *schema.FieldType, v interface{}, path string) error {
	switch t := v.(type) {
	case *Message:
		return verifyMessage(t.desc, t, path)
	case int32:
		if ft.Kind == schema.KindEnum {
			if _, ok := ft.Enum.ValueByNumber(t); !ok {
				return invalid(path, "enum value expected")
			}
		}
	}
	return nil
}

func verifyObject(desc *schema.Message, obj map[string]interface{}, path string) error {
	oneofSeen := make(map[*schema.Oneof]bool)

	for _, f := range desc.Fields {
		v, ok := objectValue(obj, f)
		if !ok {
			if f.IsRequired() {
				return invalid(path, fmt.Sprintf("missing required '%s'", f.Name))
			}
			continue
		}
		if o := f.OneofGroup(); o != nil {
			if oneofSeen[o] {
				return invalid(joinPath(path, o.Name), "multiple values")
			}
			oneofSeen[o] = true
		}
		if err := verifyField(f, v, joinPath(path, f.Name)); err != nil {
			return err
		}
	}

	for _, f := range desc.ExtensionFields() {
		v, ok := objectValue(obj, f)
		if !ok {
			continue
		}
		if err := verifyField(f, v, joinPath(path, f.Key())); err != nil {
			return err
		}
	}
	return nil
}

// objectValue looks a field up in a plain object by declared name, JSON name
// or, for extensions, by full name with or without a leading dot or
// parentheses. A nil value counts as absent.
func objectValue(obj map[string]interface{}, f *schema.Field) (interface{}, bool) {
	var keys []string
	if f.IsExtension() {
		keys = []string{f.FullName, "." + f.FullName, "(" + f.FullName + ")", "(." + f.FullName + ")"}
	} else {
		keys = []string{f.Name, f.JSONName()}
	}
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func verifyField(f *schema.Field, v interface{}, path string) error {
	switch {
	case f.IsMap():
		return verifyMap(f, v, path)
	case f.IsRepeated():
		list, ok := asSlice(v)
		if !ok {
			return invalid(path, "array expected")
		}
		for _, elem := range list {
			if err := verifyValue(&f.Type, elem, path); err != nil {
				return err
			}
		}
		return nil
	}
	return verifyValue(&f.Type, v, path)
}

func verifyMap(f *schema.Field, v interface{}, path string) error {
	keyType := f.Type.MapKey.PrimitiveType

	if mp, ok := v.(*Map); ok {
		for _, e := range mp.entries {
			if err := verifyValue(f.Type.MapValue, e.Value, path); err != nil {
				return err
			}
		}
		return nil
	}

	obj, ok := asObject(v)
	if !ok {
		return invalid(path, "object expected")
	}
	for key, value := range obj {
		if err := verifyKey(keyType, key); err != nil {
			return invalid(path, err.Error())
		}
		if err := verifyValue(f.Type.MapValue, value, path); err != nil {
			return err
		}
	}
	return nil
}

func verifyKey(keyType schema.PrimitiveType, key string) error {
	switch {
	case keyType == schema.TypeString:
		return nil
	case keyType == schema.TypeBool:
		switch key {
		case "true", "false", "0", "1":
			return nil
		}
		return keyError(keyType)
	case keyType.IsLong():
		if len(key) == 8 && !integerKeyRE.MatchString(key) {
			return nil
		}
	}
	re := integerKeyRE
	if keyType == schema.TypeUint32 || keyType == schema.TypeFixed32 || keyType == schema.TypeUint64 || keyType == schema.TypeFixed64 {
		re = unsignedKeyRE
	}
	if !re.MatchString(key) {
		return keyError(keyType)
	}
	if _, err := ParseKey(keyType, key); err != nil {
		return err
	}
	return nil
}

func verifyValue(ft *schema.FieldType, v interface{}, path string) error {
	switch ft.Kind {
	case schema.KindEnum:
		if !enumValueKnown(ft.Enum, v) {
			return invalid(path, "enum value expected")
		}
		return nil
	case schema.KindMessage, schema.KindGroup:
		if m, ok := v.(*Message); ok {
			return verifyMessage(ft.Message, m, path)
		}
		obj, ok := asObject(v)
		if !ok {
			return invalid(path, "object expected")
		}
		return verifyObject(ft.Message, obj, path)
	}

	switch ft.PrimitiveType {
	case schema.TypeInt32, schema.TypeSint32, schema.TypeSfixed32, schema.TypeUint32, schema.TypeFixed32:
		if !isInteger(v) {
			return invalid(path, "integer expected")
		}
	case schema.TypeInt64, schema.TypeSint64, schema.TypeSfixed64, schema.TypeUint64, schema.TypeFixed64:
		if !isLong(v) {
			return invalid(path, "integer|Long expected")
		}
	case schema.TypeFloat, schema.TypeDouble:
		if !isNumber(v) {
			return invalid(path, "number expected")
		}
	case schema.TypeBool:
		if _, ok := v.(bool); !ok {
			return invalid(path, "boolean expected")
		}
	case schema.TypeString:
		if _, ok := v.(string); !ok {
			return invalid(path, "string expected")
		}
	case schema.TypeBytes:
		if !isBuffer(v) {
			return invalid(path, "buffer expected")
		}
	}
	return nil
}

// isLong accepts integers, decimal strings and {low, high} objects.
func isLong(v interface{}) bool {
	switch t := v.(type) {
	case string:
		return integerKeyRE.MatchString(t)
	case map[string]interface{}:
		return isInteger(t["low"]) && isInteger(t["high"])
	}
	return isInteger(v)
}

func isBuffer(v interface{}) bool {
	switch t := v.(type) {
	case []byte:
		return true
	case string:
		_, err := decodeBase64(t)
		return err == nil
	}
	list, ok := asSlice(v)
	if !ok {
		return false
	}
	for _, elem := range list {
		n, err := coerceToInt64(elem)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

func enumValueKnown(enum *schema.Enum, v interface{}) bool {
	if name, ok := v.(string); ok {
		_, known := enum.ValueByName(name)
		return known
	}
	if !isInteger(v) {
		return false
	}
	n, err := coerceToInt64(v)
	if err != nil || n < -1<<31 || n > 1<<31-1 {
		return false
	}
	_, known := enum.ValueByNumber(int32(n))
	return known
}

// decodeBase64 accepts standard and URL-safe alphabets, padded or not.
func decodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding}
	var err error
	for _, enc := range encodings {
		var b []byte
		if b, err = enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, err
}
