package registry

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	protoparser "github.com/yoheimuta/go-protoparser/v4"
	protoparserparser "github.com/yoheimuta/go-protoparser/v4/parser"

	"github.com/wanglam/pbcore/schema"
)

// LoadSchema parses a .proto file, or every .proto file under a directory,
// together with the files they import, and adds them to the registry.
// Resolve must still be called once all files are loaded.
func (r *Registry) LoadSchema(protoPath string) error {
	if r.resolved {
		return ErrSealed
	}

	info, err := os.Stat(protoPath)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}

	if !info.IsDir() {
		if !strings.HasSuffix(protoPath, ".proto") {
			return fmt.Errorf("file %s is not a .proto file", protoPath)
		}
		if err := r.loadProtoTree(protoPath); err != nil {
			return fmt.Errorf("failed to load proto file: %w", err)
		}
		return nil
	}

	err = filepath.WalkDir(protoPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".proto") {
			return nil
		}
		if err := r.loadProtoTree(path); err != nil {
			return fmt.Errorf("failed to load proto file %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}
	return nil
}

// loadProtoTree walks the import graph of protoFile depth first and adds
// every file not loaded before, dependencies first.
func (r *Registry) loadProtoTree(protoFile string) error {
	visiting := make(map[string]struct{}) // to make sure we don't end up in a loop

	var dfs func(fullPath, name string) error
	dfs = func(fullPath, name string) error {
		abs, err := filepath.Abs(fullPath)
		if err != nil {
			return err
		}
		if _, ok := r.loaded[abs]; ok {
			return nil
		}
		if _, ok := visiting[abs]; ok {
			return nil
		}
		visiting[abs] = struct{}{}

		protoBytes, err := os.ReadFile(fullPath)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		parsedBody, err := protoparser.Parse(bytes.NewBuffer(protoBytes), protoparser.WithFilename(name))
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", name, err)
		}

		file, err := convertProto(name, parsedBody)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		for _, imp := range file.Imports {
			if strings.HasPrefix(imp.Path, "google/protobuf/") {
				r.logger.Debug().Str("import", imp.Path).Msg("skipping well-known import")
				continue
			}
			importPath, err := r.findIfProtoExists(imp.Path, filepath.Dir(fullPath))
			if err != nil {
				if imp.Weak {
					continue
				}
				return err
			}
			if err := dfs(importPath, imp.Path); err != nil {
				return err
			}
		}

		if err := r.AddFile(file); err != nil {
			return err
		}
		r.loaded[abs] = struct{}{}
		r.logger.Debug().Str("path", fullPath).Msg("proto file loaded")
		return nil
	}

	return dfs(protoFile, filepath.Base(protoFile))
}

// findIfProtoExists locates an import in the proto directories, then next to
// the importing file.
func (r *Registry) findIfProtoExists(protoPath, importerDir string) (string, error) {
	protoPath = strings.Trim(protoPath, `"`)
	if !strings.HasSuffix(protoPath, ".proto") {
		return "", fmt.Errorf("is not a .proto file %s", protoPath)
	}

	dirs := append(append([]string{}, r.ProtoDirectories...), importerDir)
	var lastErr error
	for _, dir := range dirs {
		fullPath := filepath.Join(dir, protoPath)
		_, err := os.Stat(fullPath)
		if err == nil {
			return fullPath, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("import %s not found in %v: %w", protoPath, dirs, lastErr)
}

// convertProto turns a parsed .proto AST into a schema file.
func convertProto(name string, parsed *protoparserparser.Proto) (*schema.ProtoFile, error) {
	file := &schema.ProtoFile{
		Name:   name,
		Syntax: "proto2",
	}
	if parsed.Syntax != nil {
		file.Syntax = strings.Trim(parsed.Syntax.ProtobufVersion, `"'`)
	}
	proto3 := file.Syntax == "proto3"

	for _, body := range parsed.ProtoBody {
		switch b := body.(type) {
		case *protoparserparser.Package:
			file.Package = b.Name
		case *protoparserparser.Import:
			file.Imports = append(file.Imports, &schema.Import{
				Path:   strings.Trim(b.Location, `"'`),
				Public: b.Modifier == protoparserparser.ImportModifierPublic,
				Weak:   b.Modifier == protoparserparser.ImportModifierWeak,
			})
		case *protoparserparser.Message:
			msg, err := convertMessage(b.MessageName, b.MessageBody, proto3)
			if err != nil {
				return nil, err
			}
			file.Messages = append(file.Messages, msg)
		case *protoparserparser.Enum:
			enum, err := convertEnum(b)
			if err != nil {
				return nil, err
			}
			file.Enums = append(file.Enums, enum)
		case *protoparserparser.Extend:
			exts, nested, err := convertExtend(b, proto3)
			if err != nil {
				return nil, err
			}
			file.Extensions = append(file.Extensions, exts...)
			file.Messages = append(file.Messages, nested...)
		case *protoparserparser.Service:
			file.Services = append(file.Services, convertService(b))
		}
	}
	return file, nil
}

func convertMessage(name string, body []protoparserparser.Visitee, proto3 bool) (*schema.Message, error) {
	msg := &schema.Message{Name: name}

	for _, item := range body {
		switch b := item.(type) {
		case *protoparserparser.Field:
			f, err := convertField(b.FieldName, b.Type, b.FieldNumber, fieldLabel(b.IsRepeated, b.IsRequired), b.FieldOptions, proto3)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			msg.Fields = append(msg.Fields, f)
		case *protoparserparser.MapField:
			f, err := convertField(b.MapName, b.Type, b.FieldNumber, schema.LabelRepeated, b.FieldOptions, proto3)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			key, ok := schema.ParsePrimitiveType(b.KeyType)
			if !ok {
				return nil, fmt.Errorf("%s: field %q: invalid map key type %q", name, b.MapName, b.KeyType)
			}
			valueType := f.Type
			f.Type = schema.FieldType{
				Kind:     schema.KindMap,
				MapKey:   &schema.FieldType{Kind: schema.KindPrimitive, PrimitiveType: key},
				MapValue: &valueType,
			}
			msg.Fields = append(msg.Fields, f)
		case *protoparserparser.Oneof:
			msg.OneofGroups = append(msg.OneofGroups, &schema.Oneof{Name: b.OneofName})
			for _, of := range b.OneofFields {
				f, err := convertField(of.FieldName, of.Type, of.FieldNumber, schema.LabelOptional, of.FieldOptions, proto3)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", name, err)
				}
				f.Oneof = b.OneofName
				msg.Fields = append(msg.Fields, f)
			}
		case *protoparserparser.GroupField:
			f, nested, err := convertGroup(b, proto3)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			msg.Fields = append(msg.Fields, f)
			msg.NestedTypes = append(msg.NestedTypes, nested)
		case *protoparserparser.Message:
			nested, err := convertMessage(b.MessageName, b.MessageBody, proto3)
			if err != nil {
				return nil, err
			}
			msg.NestedTypes = append(msg.NestedTypes, nested)
		case *protoparserparser.Enum:
			enum, err := convertEnum(b)
			if err != nil {
				return nil, err
			}
			msg.NestedEnums = append(msg.NestedEnums, enum)
		case *protoparserparser.Extend:
			exts, nested, err := convertExtend(b, proto3)
			if err != nil {
				return nil, err
			}
			msg.Extensions = append(msg.Extensions, exts...)
			msg.NestedTypes = append(msg.NestedTypes, nested...)
		case *protoparserparser.Extensions:
			for _, rng := range b.Ranges {
				er, err := convertRange(rng)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", name, err)
				}
				msg.ExtensionRanges = append(msg.ExtensionRanges, er)
			}
		}
	}
	return msg, nil
}

func fieldLabel(repeated, required bool) schema.FieldLabel {
	switch {
	case repeated:
		return schema.LabelRepeated
	case required:
		return schema.LabelRequired
	}
	return schema.LabelOptional
}

func convertField(name, typeName, number string, label schema.FieldLabel, options []*protoparserparser.FieldOption, proto3 bool) (*schema.Field, error) {
	n, err := parseNumber(number)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", name, err)
	}
	f := &schema.Field{
		Name:   name,
		Number: n,
		Label:  label,
		Type:   typeFor(typeName),
	}
	for _, opt := range options {
		switch opt.OptionName {
		case "packed":
			packed := opt.Constant == "true"
			f.Packed = &packed
		case "default":
			f.DefaultValue = defaultLiteral(f.Type, opt.Constant)
		case "json_name":
			f.JsonName = unquote(opt.Constant)
		}
	}
	return f, nil
}

// convertGroup returns the group field and the message type it declares.
func convertGroup(g *protoparserparser.GroupField, proto3 bool) (*schema.Field, *schema.Message, error) {
	n, err := parseNumber(g.FieldNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("group %q: %w", g.GroupName, err)
	}
	nested, err := convertMessage(g.GroupName, g.MessageBody, proto3)
	if err != nil {
		return nil, nil, err
	}
	f := &schema.Field{
		Name:   strings.ToLower(g.GroupName),
		Number: n,
		Label:  fieldLabel(g.IsRepeated, g.IsRequired),
		Type:   schema.FieldType{Kind: schema.KindGroup, TypeName: g.GroupName},
	}
	return f, nested, nil
}

func convertExtend(e *protoparserparser.Extend, proto3 bool) ([]*schema.Field, []*schema.Message, error) {
	var (
		fields []*schema.Field
		nested []*schema.Message
	)
	for _, item := range e.ExtendBody {
		switch b := item.(type) {
		case *protoparserparser.Field:
			f, err := convertField(b.FieldName, b.Type, b.FieldNumber, fieldLabel(b.IsRepeated, b.IsRequired), b.FieldOptions, proto3)
			if err != nil {
				return nil, nil, fmt.Errorf("extend %s: %w", e.MessageType, err)
			}
			f.Extendee = e.MessageType
			fields = append(fields, f)
		case *protoparserparser.GroupField:
			f, msg, err := convertGroup(b, proto3)
			if err != nil {
				return nil, nil, fmt.Errorf("extend %s: %w", e.MessageType, err)
			}
			f.Extendee = e.MessageType
			fields = append(fields, f)
			nested = append(nested, msg)
		}
	}
	return fields, nested, nil
}

func convertEnum(e *protoparserparser.Enum) (*schema.Enum, error) {
	enum := &schema.Enum{Name: e.EnumName}
	for _, item := range e.EnumBody {
		switch b := item.(type) {
		case *protoparserparser.EnumField:
			n, err := strconv.ParseInt(b.Number, 0, 32)
			if err != nil {
				return nil, fmt.Errorf("enum %s: value %s: %w", e.EnumName, b.Ident, err)
			}
			enum.Values = append(enum.Values, &schema.EnumValue{Name: b.Ident, Number: int32(n)})
		case *protoparserparser.Option:
			if b.OptionName == "allow_alias" {
				enum.AllowAlias = b.Constant == "true"
			}
		}
	}
	if len(enum.Values) == 0 {
		return nil, fmt.Errorf("enum %s has no values", e.EnumName)
	}
	return enum, nil
}

func convertService(s *protoparserparser.Service) *schema.Service {
	service := &schema.Service{Name: s.ServiceName}
	for _, item := range s.ServiceBody {
		rpc, ok := item.(*protoparserparser.RPC)
		if !ok {
			continue
		}
		m := &schema.Method{Name: rpc.RPCName}
		if rpc.RPCRequest != nil {
			m.InputType = rpc.RPCRequest.MessageType
			m.ClientStreaming = rpc.RPCRequest.IsStream
		}
		if rpc.RPCResponse != nil {
			m.OutputType = rpc.RPCResponse.MessageType
			m.ServerStreaming = rpc.RPCResponse.IsStream
		}
		service.Methods = append(service.Methods, m)
	}
	return service
}

func convertRange(rng *protoparserparser.Range) (*schema.ExtensionRange, error) {
	start, err := parseNumber(rng.Begin)
	if err != nil {
		return nil, fmt.Errorf("extension range: %w", err)
	}
	er := &schema.ExtensionRange{Start: start, End: start}
	switch rng.End {
	case "":
	case "max":
		er.End = 1<<29 - 1
	default:
		if er.End, err = parseNumber(rng.End); err != nil {
			return nil, fmt.Errorf("extension range: %w", err)
		}
	}
	return er, nil
}

func typeFor(name string) schema.FieldType {
	if pt, ok := schema.ParsePrimitiveType(name); ok {
		return schema.FieldType{Kind: schema.KindPrimitive, PrimitiveType: pt}
	}
	return schema.FieldType{Kind: schema.KindNamed, TypeName: name}
}

func parseNumber(s string) (int32, error) {
	if s == "max" {
		return 1<<29 - 1, nil
	}
	n, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid field number %q", s)
	}
	return int32(n), nil
}

// defaultLiteral normalizes a [default=...] constant the way descriptor sets
// carry it: strings unescaped, bytes left C-escaped.
func defaultLiteral(ft schema.FieldType, constant string) string {
	if ft.Kind != schema.KindPrimitive {
		return constant
	}
	switch ft.PrimitiveType {
	case schema.TypeString:
		return unquote(constant)
	case schema.TypeBytes:
		return strings.Trim(constant, `"'`)
	}
	return constant
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		inner := s[1 : len(s)-1]
		if u, err := strconv.Unquote(`"` + inner + `"`); err == nil {
			return u
		}
		return inner
	}
	return s
}
