package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ZeroValue returns the implicit default of a singular field of type ft, as
// its canonical Go value. Messages, groups and maps have no scalar default
// and yield nil.
func ZeroValue(ft *FieldType) interface{} {
	switch ft.Kind {
	case KindEnum:
		if ft.Enum != nil {
			return ft.Enum.Default()
		}
		return int32(0)
	case KindPrimitive:
		switch ft.PrimitiveType {
		case TypeInt32, TypeSint32, TypeSfixed32:
			return int32(0)
		case TypeUint32, TypeFixed32:
			return uint32(0)
		case TypeInt64, TypeSint64, TypeSfixed64:
			return int64(0)
		case TypeUint64, TypeFixed64:
			return uint64(0)
		case TypeFloat:
			return float32(0)
		case TypeDouble:
			return float64(0)
		case TypeBool:
			return false
		case TypeString:
			return ""
		case TypeBytes:
			return []byte{}
		}
	}
	return nil
}

// ParseDefault parses a proto2 [default=...] literal for a field of type ft.
func ParseDefault(ft *FieldType, literal string) (interface{}, error) {
	switch ft.Kind {
	case KindEnum:
		if ft.Enum == nil {
			return nil, fmt.Errorf("enum default %q before enum is bound", literal)
		}
		if v, ok := ft.Enum.ValueByName(literal); ok {
			return v.Number, nil
		}
		return nil, fmt.Errorf("default %q is not a value of enum %s", literal, ft.Enum.FullName)
	case KindPrimitive:
	default:
		return nil, fmt.Errorf("no default allowed for %s fields", ft.Kind)
	}

	switch ft.PrimitiveType {
	case TypeInt32, TypeSint32, TypeSfixed32:
		v, err := strconv.ParseInt(literal, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid %s default %q: %w", ft.PrimitiveType, literal, err)
		}
		return int32(v), nil
	case TypeUint32, TypeFixed32:
		v, err := strconv.ParseUint(literal, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid %s default %q: %w", ft.PrimitiveType, literal, err)
		}
		return uint32(v), nil
	case TypeInt64, TypeSint64, TypeSfixed64:
		v, err := strconv.ParseInt(literal, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s default %q: %w", ft.PrimitiveType, literal, err)
		}
		return v, nil
	case TypeUint64, TypeFixed64:
		v, err := strconv.ParseUint(literal, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s default %q: %w", ft.PrimitiveType, literal, err)
		}
		return v, nil
	case TypeFloat:
		v, err := parseFloatLiteral(literal, 32)
		if err != nil {
			return nil, err
		}
		return float32(v), nil
	case TypeDouble:
		return parseFloatLiteral(literal, 64)
	case TypeBool:
		switch literal {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("invalid bool default %q", literal)
	case TypeString:
		return literal, nil
	case TypeBytes:
		return unescapeBytes(literal), nil
	}
	return nil, fmt.Errorf("unknown primitive type %q", ft.PrimitiveType)
}

func parseFloatLiteral(literal string, bits int) (float64, error) {
	switch strings.ToLower(literal) {
	case "inf", "+inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	case "nan":
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(literal, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid float default %q: %w", literal, err)
	}
	return v, nil
}

// unescapeBytes decodes the C-style escapes protoc uses for bytes defaults.
// Literals that do not unquote are taken verbatim.
func unescapeBytes(literal string) []byte {
	if s, err := strconv.Unquote(`"` + literal + `"`); err == nil {
		return []byte(s)
	}
	return []byte(literal)
}
