// Package sample builds the two documents of the Dremel paper as protobuf
// messages.
package sample

import (
	"io"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"proto2parquet/recordio"
)

// RootMessage is the root message name written into sample streams. It is
// relative to the file's package.
const RootMessage = "Document"

// File returns the descriptor of sample.proto:
//
//	message Document {
//	  required int64 docid = 1;
//	  optional Links links = 2;
//	  repeated Name name = 3;
//	}
//	message Links { repeated int64 backward = 1; repeated int64 forward = 2; }
//	message Name { repeated Language language = 1; optional string url = 2; }
//	message Language { required string code = 1; optional string country = 2; }
//
// Links, Name and Language are nested in Document.
func File() *descriptorpb.FileDescriptorProto {
	field := func(name string, number int32, label descriptorpb.FieldDescriptorProto_Label, typ descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
		f := &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(name),
			Number: proto.Int32(number),
			Label:  label.Enum(),
			Type:   typ.Enum(),
		}
		if typeName != "" {
			f.TypeName = proto.String(typeName)
		}
		return f
	}
	const (
		required = descriptorpb.FieldDescriptorProto_LABEL_REQUIRED
		optional = descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
		repeated = descriptorpb.FieldDescriptorProto_LABEL_REPEATED

		int64Type   = descriptorpb.FieldDescriptorProto_TYPE_INT64
		stringType  = descriptorpb.FieldDescriptorProto_TYPE_STRING
		messageType = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	)

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("sample.proto"),
		Package: proto.String("sample"),
		Syntax:  proto.String("proto2"),
		MessageType: []*descriptorpb.DescriptorProto{{
			Name: proto.String("Document"),
			Field: []*descriptorpb.FieldDescriptorProto{
				field("docid", 1, required, int64Type, ""),
				field("links", 2, optional, messageType, ".sample.Document.Links"),
				field("name", 3, repeated, messageType, ".sample.Document.Name"),
			},
			NestedType: []*descriptorpb.DescriptorProto{
				{
					Name: proto.String("Links"),
					Field: []*descriptorpb.FieldDescriptorProto{
						field("backward", 1, repeated, int64Type, ""),
						field("forward", 2, repeated, int64Type, ""),
					},
				},
				{
					Name: proto.String("Name"),
					Field: []*descriptorpb.FieldDescriptorProto{
						field("language", 1, repeated, messageType, ".sample.Document.Language"),
						field("url", 2, optional, stringType, ""),
					},
				},
				{
					Name: proto.String("Language"),
					Field: []*descriptorpb.FieldDescriptorProto{
						field("code", 1, required, stringType, ""),
						field("country", 2, optional, stringType, ""),
					},
				},
			},
		}},
	}
}

// Descriptor resolves the Document message.
func Descriptor() (protoreflect.MessageDescriptor, error) {
	fd, err := protodesc.NewFile(File(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build sample descriptor")
	}
	return fd.Messages().ByName(RootMessage), nil
}

// Documents returns the two sample documents.
func Documents(md protoreflect.MessageDescriptor) []*dynamicpb.Message {
	type language struct{ code, country string }
	type name struct {
		url       string
		languages []language
	}
	type document struct {
		docid             int64
		backward, forward []int64
		names             []name
	}

	docs := []document{
		{
			docid:   10,
			forward: []int64{20, 40, 60},
			names: []name{
				{url: "http://A", languages: []language{{"en-us", "us"}, {"en", ""}}},
				{url: "http://B"},
				{languages: []language{{"en-gb", "gb"}}},
			},
		},
		{
			docid:    20,
			backward: []int64{10, 30},
			forward:  []int64{80},
			names:    []name{{url: "http://C"}},
		},
	}

	fields := md.Fields()
	links := fields.ByName("links").Message()
	nameMD := fields.ByName("name").Message()
	langMD := nameMD.Fields().ByName("language").Message()

	out := make([]*dynamicpb.Message, 0, len(docs))
	for _, d := range docs {
		m := dynamicpb.NewMessage(md)
		m.Set(fields.ByName("docid"), protoreflect.ValueOfInt64(d.docid))

		l := m.Mutable(fields.ByName("links")).Message()
		for _, v := range d.backward {
			l.Mutable(links.Fields().ByName("backward")).List().Append(protoreflect.ValueOfInt64(v))
		}
		for _, v := range d.forward {
			l.Mutable(links.Fields().ByName("forward")).List().Append(protoreflect.ValueOfInt64(v))
		}

		names := m.Mutable(fields.ByName("name")).List()
		for _, n := range d.names {
			nv := names.NewElement()
			nm := nv.Message()
			if n.url != "" {
				nm.Set(nameMD.Fields().ByName("url"), protoreflect.ValueOfString(n.url))
			}
			langs := nm.Mutable(nameMD.Fields().ByName("language")).List()
			for _, lang := range n.languages {
				lv := langs.NewElement()
				lm := lv.Message()
				lm.Set(langMD.Fields().ByName("code"), protoreflect.ValueOfString(lang.code))
				if lang.country != "" {
					lm.Set(langMD.Fields().ByName("country"), protoreflect.ValueOfString(lang.country))
				}
				langs.Append(lv)
			}
			names.Append(nv)
		}
		out = append(out, m)
	}
	return out
}

// Write emits a tagged stream holding the sample descriptor and documents.
func Write(w io.Writer) error {
	md, err := Descriptor()
	if err != nil {
		return err
	}
	fds, err := proto.Marshal(&descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{File()},
	})
	if err != nil {
		return errors.Wrap(err, "marshal sample descriptor")
	}

	rw := recordio.NewWriter(w)
	if err := rw.WriteHeader(recordio.Header{Descriptors: fds, RootMessage: RootMessage}); err != nil {
		return err
	}
	opts := proto.MarshalOptions{Deterministic: true}
	for _, doc := range Documents(md) {
		b, err := opts.Marshal(doc)
		if err != nil {
			return errors.Wrap(err, "marshal sample document")
		}
		if err := rw.WriteRecord(b); err != nil {
			return err
		}
	}
	return nil
}
