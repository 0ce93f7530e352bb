package registry

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/wanglam/pbcore/schema"
)

// AddFileDescriptorSet adds every file of a compiled descriptor set, as
// written by protoc --descriptor_set_out.
func (r *Registry) AddFileDescriptorSet(set *descriptorpb.FileDescriptorSet) error {
	for _, fd := range set.GetFile() {
		if err := r.AddFileDescriptor(fd); err != nil {
			return err
		}
	}
	return nil
}

// AddFileDescriptor converts a compiled file descriptor and adds it.
func (r *Registry) AddFileDescriptor(fd *descriptorpb.FileDescriptorProto) error {
	if r.resolved {
		return ErrSealed
	}
	file, err := convertFileDescriptor(fd)
	if err != nil {
		return fmt.Errorf("%s: %w", fd.GetName(), err)
	}
	return r.AddFile(file)
}

func convertFileDescriptor(fd *descriptorpb.FileDescriptorProto) (*schema.ProtoFile, error) {
	file := &schema.ProtoFile{
		Name:    fd.GetName(),
		Package: fd.GetPackage(),
		Syntax:  fd.GetSyntax(),
	}
	if file.Syntax == "" {
		file.Syntax = "proto2"
	}

	public := make(map[int32]struct{}, len(fd.GetPublicDependency()))
	for _, i := range fd.GetPublicDependency() {
		public[i] = struct{}{}
	}
	weak := make(map[int32]struct{}, len(fd.GetWeakDependency()))
	for _, i := range fd.GetWeakDependency() {
		weak[i] = struct{}{}
	}
	for i, dep := range fd.GetDependency() {
		_, isPublic := public[int32(i)]
		_, isWeak := weak[int32(i)]
		file.Imports = append(file.Imports, &schema.Import{Path: dep, Public: isPublic, Weak: isWeak})
	}

	for _, md := range fd.GetMessageType() {
		msg, err := convertDescriptor(md)
		if err != nil {
			return nil, err
		}
		file.Messages = append(file.Messages, msg)
	}
	for _, ed := range fd.GetEnumType() {
		file.Enums = append(file.Enums, convertEnumDescriptor(ed))
	}
	for _, xd := range fd.GetExtension() {
		f, err := convertFieldDescriptor(xd, nil)
		if err != nil {
			return nil, err
		}
		file.Extensions = append(file.Extensions, f)
	}
	for _, sd := range fd.GetService() {
		file.Services = append(file.Services, convertServiceDescriptor(sd))
	}
	return file, nil
}

// convertDescriptor converts a message descriptor. Synthetic map entry types
// are folded into their map fields and not registered as messages.
func convertDescriptor(md *descriptorpb.DescriptorProto) (*schema.Message, error) {
	msg := &schema.Message{Name: md.GetName()}

	entries := make(map[string]*descriptorpb.DescriptorProto)
	for _, nd := range md.GetNestedType() {
		if nd.GetOptions().GetMapEntry() {
			entries[nd.GetName()] = nd
			continue
		}
		nested, err := convertDescriptor(nd)
		if err != nil {
			return nil, err
		}
		msg.NestedTypes = append(msg.NestedTypes, nested)
	}
	for _, ed := range md.GetEnumType() {
		msg.NestedEnums = append(msg.NestedEnums, convertEnumDescriptor(ed))
	}

	// Synthetic oneofs of proto3 optional fields are not real groups.
	synthetic := make(map[int32]bool)
	for _, fd := range md.GetField() {
		if fd.GetProto3Optional() && fd.OneofIndex != nil {
			synthetic[fd.GetOneofIndex()] = true
		}
	}
	oneofNames := make([]string, len(md.GetOneofDecl()))
	for i, od := range md.GetOneofDecl() {
		oneofNames[i] = od.GetName()
		if !synthetic[int32(i)] {
			msg.OneofGroups = append(msg.OneofGroups, &schema.Oneof{Name: od.GetName()})
		}
	}

	for _, fd := range md.GetField() {
		f, err := convertFieldDescriptor(fd, entries)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", md.GetName(), err)
		}
		if fd.OneofIndex != nil && !synthetic[fd.GetOneofIndex()] {
			idx := int(fd.GetOneofIndex())
			if idx >= len(oneofNames) {
				return nil, fmt.Errorf("%s: field %q: oneof index %d out of range", md.GetName(), fd.GetName(), idx)
			}
			f.Oneof = oneofNames[idx]
		}
		msg.Fields = append(msg.Fields, f)
	}

	for _, xd := range md.GetExtension() {
		f, err := convertFieldDescriptor(xd, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", md.GetName(), err)
		}
		msg.Extensions = append(msg.Extensions, f)
	}
	for _, rd := range md.GetExtensionRange() {
		// descriptor ranges are end-exclusive
		msg.ExtensionRanges = append(msg.ExtensionRanges, &schema.ExtensionRange{
			Start: rd.GetStart(),
			End:   rd.GetEnd() - 1,
		})
	}
	return msg, nil
}

func convertFieldDescriptor(fd *descriptorpb.FieldDescriptorProto, entries map[string]*descriptorpb.DescriptorProto) (*schema.Field, error) {
	f := &schema.Field{
		Name:         fd.GetName(),
		Number:       fd.GetNumber(),
		DefaultValue: fd.GetDefaultValue(),
		JsonName:     fd.GetJsonName(),
		Extendee:     fd.GetExtendee(),
	}
	switch fd.GetLabel() {
	case descriptorpb.FieldDescriptorProto_LABEL_REPEATED:
		f.Label = schema.LabelRepeated
	case descriptorpb.FieldDescriptorProto_LABEL_REQUIRED:
		f.Label = schema.LabelRequired
	default:
		f.Label = schema.LabelOptional
	}
	if opts := fd.GetOptions(); opts != nil && opts.Packed != nil {
		packed := opts.GetPacked()
		f.Packed = &packed
	}

	ft, err := fieldTypeFor(fd)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", fd.GetName(), err)
	}
	f.Type = ft

	if f.Label == schema.LabelRepeated && ft.Kind == schema.KindMessage && entries != nil {
		if entry, ok := entries[lastSegment(ft.TypeName)]; ok {
			mapType, err := mapTypeFor(entry)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", fd.GetName(), err)
			}
			f.Type = mapType
		}
	}
	return f, nil
}

func mapTypeFor(entry *descriptorpb.DescriptorProto) (schema.FieldType, error) {
	var key, value *schema.FieldType
	for _, fd := range entry.GetField() {
		ft, err := fieldTypeFor(fd)
		if err != nil {
			return schema.FieldType{}, err
		}
		switch fd.GetNumber() {
		case 1:
			key = &ft
		case 2:
			value = &ft
		}
	}
	if key == nil || value == nil {
		return schema.FieldType{}, fmt.Errorf("map entry %s lacks key or value", entry.GetName())
	}
	return schema.FieldType{Kind: schema.KindMap, MapKey: key, MapValue: value}, nil
}

var descriptorPrimitives = map[descriptorpb.FieldDescriptorProto_Type]schema.PrimitiveType{
	descriptorpb.FieldDescriptorProto_TYPE_DOUBLE:   schema.TypeDouble,
	descriptorpb.FieldDescriptorProto_TYPE_FLOAT:    schema.TypeFloat,
	descriptorpb.FieldDescriptorProto_TYPE_INT64:    schema.TypeInt64,
	descriptorpb.FieldDescriptorProto_TYPE_UINT64:   schema.TypeUint64,
	descriptorpb.FieldDescriptorProto_TYPE_INT32:    schema.TypeInt32,
	descriptorpb.FieldDescriptorProto_TYPE_FIXED64:  schema.TypeFixed64,
	descriptorpb.FieldDescriptorProto_TYPE_FIXED32:  schema.TypeFixed32,
	descriptorpb.FieldDescriptorProto_TYPE_BOOL:     schema.TypeBool,
	descriptorpb.FieldDescriptorProto_TYPE_STRING:   schema.TypeString,
	descriptorpb.FieldDescriptorProto_TYPE_BYTES:    schema.TypeBytes,
	descriptorpb.FieldDescriptorProto_TYPE_UINT32:   schema.TypeUint32,
	descriptorpb.FieldDescriptorProto_TYPE_SFIXED32: schema.TypeSfixed32,
	descriptorpb.FieldDescriptorProto_TYPE_SFIXED64: schema.TypeSfixed64,
	descriptorpb.FieldDescriptorProto_TYPE_SINT32:   schema.TypeSint32,
	descriptorpb.FieldDescriptorProto_TYPE_SINT64:   schema.TypeSint64,
}

func fieldTypeFor(fd *descriptorpb.FieldDescriptorProto) (schema.FieldType, error) {
	if pt, ok := descriptorPrimitives[fd.GetType()]; ok {
		return schema.FieldType{Kind: schema.KindPrimitive, PrimitiveType: pt}, nil
	}
	switch fd.GetType() {
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE:
		return schema.FieldType{Kind: schema.KindMessage, TypeName: fd.GetTypeName()}, nil
	case descriptorpb.FieldDescriptorProto_TYPE_ENUM:
		return schema.FieldType{Kind: schema.KindEnum, TypeName: fd.GetTypeName()}, nil
	case descriptorpb.FieldDescriptorProto_TYPE_GROUP:
		return schema.FieldType{Kind: schema.KindGroup, TypeName: fd.GetTypeName()}, nil
	case 0:
		// type left out by hand-built descriptors: decided on resolve
		if fd.GetTypeName() != "" {
			return schema.FieldType{Kind: schema.KindNamed, TypeName: fd.GetTypeName()}, nil
		}
	}
	return schema.FieldType{}, fmt.Errorf("unsupported field type %v", fd.GetType())
}

func convertEnumDescriptor(ed *descriptorpb.EnumDescriptorProto) *schema.Enum {
	enum := &schema.Enum{
		Name:       ed.GetName(),
		AllowAlias: ed.GetOptions().GetAllowAlias(),
	}
	for _, vd := range ed.GetValue() {
		enum.Values = append(enum.Values, &schema.EnumValue{Name: vd.GetName(), Number: vd.GetNumber()})
	}
	return enum
}

func convertServiceDescriptor(sd *descriptorpb.ServiceDescriptorProto) *schema.Service {
	service := &schema.Service{Name: sd.GetName()}
	for _, md := range sd.GetMethod() {
		service.Methods = append(service.Methods, &schema.Method{
			Name:            md.GetName(),
			InputType:       strings.TrimPrefix(md.GetInputType(), "."),
			OutputType:      strings.TrimPrefix(md.GetOutputType(), "."),
			ClientStreaming: md.GetClientStreaming(),
			ServerStreaming: md.GetServerStreaming(),
		})
	}
	return service
}

func lastSegment(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
