package message

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/wanglam/pbcore/schema"
	"github.com/wanglam/pbcore/wire"
)

// Map holds the entries of a map field. Keys are stored under their
// canonical string form, so a 64-bit key given as decimal text or as its
// 8-byte hash lands in the same entry.
type Map struct {
	keyType   schema.PrimitiveType
	valueType *schema.FieldType
	entries   map[string]*MapEntry
}

// MapEntry is one key/value pair of a Map.
type MapEntry struct {
	Key   interface{}
	Value interface{}
}

// NewMap creates an empty map for a map field.
func NewMap(f *schema.Field) *Map {
	return &Map{
		keyType:   f.Type.MapKey.PrimitiveType,
		valueType: f.Type.MapValue,
		entries:   make(map[string]*MapEntry),
	}
}

// Set inserts or replaces an entry. The key must be of the key type's
// canonical Go type, or a string holding it; the value must be canonical.
func (m *Map) Set(key, value interface{}) error {
	k, err := m.typedKey(key)
	if err != nil {
		return err
	}
	if err := checkValue(m.valueType, value); err != nil {
		return fmt.Errorf("map value: %w", err)
	}
	m.put(k, value)
	return nil
}

// Get returns the value stored under key.
func (m *Map) Get(key interface{}) (interface{}, bool) {
	ck, err := CanonicalKey(m.keyType, key)
	if err != nil {
		return nil, false
	}
	e, ok := m.entries[ck]
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// Delete removes the entry stored under key.
func (m *Map) Delete(key interface{}) {
	if ck, err := CanonicalKey(m.keyType, key); err == nil {
		delete(m.entries, ck)
	}
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.entries)
}

// Range calls fn for each entry in ascending key order: numeric order for
// integer keys, false before true, byte order for strings.
func (m *Map) Range(fn func(key, value interface{}) bool) {
	for _, e := range m.sorted() {
		if !fn(e.Key, e.Value) {
			return
		}
	}
}

// KeyType returns the primitive type of the keys.
func (m *Map) KeyType() schema.PrimitiveType {
	return m.keyType
}

// ValueType returns the type of the values.
func (m *Map) ValueType() *schema.FieldType {
	return m.valueType
}

func (m *Map) put(key, value interface{}) {
	ck, _ := CanonicalKey(m.keyType, key)
	m.entries[ck] = &MapEntry{Key: key, Value: value}
}

func (m *Map) typedKey(key interface{}) (interface{}, error) {
	if s, ok := key.(string); ok && m.keyType != schema.TypeString {
		return ParseKey(m.keyType, s)
	}
	if err := checkPrimitive(m.keyType, key); err != nil {
		return nil, fmt.Errorf("map key: %w", err)
	}
	return key, nil
}

func (m *Map) sorted() []*MapEntry {
	entries := make([]*MapEntry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return keyLess(entries[i].Key, entries[j].Key)
	})
	return entries
}

func keyLess(a, b interface{}) bool {
	switch x := a.(type) {
	case int32:
		return x < b.(int32)
	case int64:
		return x < b.(int64)
	case uint32:
		return x < b.(uint32)
	case uint64:
		return x < b.(uint64)
	case bool:
		return !x && b.(bool)
	case string:
		return x < b.(string)
	}
	return false
}

// CanonicalKey returns the string a map key is stored under: the decimal
// form for integers, "true" or "false" for booleans, the string itself for
// strings. Integer and boolean keys may also be given as strings, and
// 64-bit keys as their 8-byte hash.
func CanonicalKey(keyType schema.PrimitiveType, key interface{}) (string, error) {
	if s, ok := key.(string); ok && keyType != schema.TypeString {
		typed, err := ParseKey(keyType, s)
		if err != nil {
			return "", err
		}
		key = typed
	}
	switch k := key.(type) {
	case int32:
		return strconv.FormatInt(int64(k), 10), nil
	case int64:
		return strconv.FormatInt(k, 10), nil
	case uint32:
		return strconv.FormatUint(uint64(k), 10), nil
	case uint64:
		return strconv.FormatUint(k, 10), nil
	case bool:
		return strconv.FormatBool(k), nil
	case string:
		return k, nil
	}
	return "", fmt.Errorf("invalid %s map key %T", keyType, key)
}

// ParseKey converts the string form of a map key to its canonical Go value.
func ParseKey(keyType schema.PrimitiveType, s string) (interface{}, error) {
	switch keyType {
	case schema.TypeString:
		return s, nil
	case schema.TypeBool:
		switch s {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return nil, keyError(keyType)
	case schema.TypeInt32, schema.TypeSint32, schema.TypeSfixed32:
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, keyError(keyType)
		}
		return int32(v), nil
	case schema.TypeUint32, schema.TypeFixed32:
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return nil, keyError(keyType)
		}
		return uint32(v), nil
	case schema.TypeInt64, schema.TypeSint64, schema.TypeSfixed64:
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v, nil
		}
		if h, ok := wire.LongFromHash(s); ok {
			return int64(h), nil
		}
		return nil, keyError(keyType)
	case schema.TypeUint64, schema.TypeFixed64:
		if v, err := strconv.ParseUint(s, 10, 64); err == nil {
			return v, nil
		}
		if h, ok := wire.LongFromHash(s); ok {
			return h, nil
		}
		return nil, keyError(keyType)
	}
	return nil, fmt.Errorf("invalid map key type %s", keyType)
}

// keyError carries the reason Verify reports for a malformed key.
func keyError(keyType schema.PrimitiveType) error {
	switch {
	case keyType == schema.TypeBool:
		return fmt.Errorf("boolean key{k:%s} expected", keyType)
	case keyType.IsLong():
		return fmt.Errorf("integer|Long key{k:%s} expected", keyType)
	}
	return fmt.Errorf("integer key{k:%s} expected", keyType)
}
