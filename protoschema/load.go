package protoschema

import (
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// ParseFiles compiles .proto sources, resolving them and their imports
// against importPaths.
func ParseFiles(importPaths []string, filenames ...string) (*protoregistry.Files, error) {
	p := protoparse.Parser{ImportPaths: importPaths}
	fds, err := p.ParseFiles(filenames...)
	if err != nil {
		return nil, errors.Wrap(err, "parse proto files")
	}

	files := new(protoregistry.Files)
	for _, fd := range fds {
		if err := register(files, fd.UnwrapFile()); err != nil {
			return nil, err
		}
	}
	return files, nil
}

// register adds fd after its imports.
func register(files *protoregistry.Files, fd protoreflect.FileDescriptor) error {
	if _, err := files.FindFileByPath(fd.Path()); err == nil {
		return nil
	}
	imports := fd.Imports()
	for i := 0; i < imports.Len(); i++ {
		if err := register(files, imports.Get(i).FileDescriptor); err != nil {
			return err
		}
	}
	return errors.Wrapf(files.RegisterFile(fd), "register %s", fd.Path())
}

// ParseDescriptorSet resolves a serialized FileDescriptorSet.
func ParseDescriptorSet(b []byte) (*protoregistry.Files, error) {
	var fds descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(b, &fds); err != nil {
		return nil, errors.Wrap(err, "decode FileDescriptorSet")
	}
	files, err := protodesc.NewFiles(&fds)
	if err != nil {
		return nil, errors.Wrap(err, "resolve FileDescriptorSet")
	}
	return files, nil
}

// FindMessage looks up a message by full name, or by a name relative to the
// package of one of the files.
func FindMessage(files *protoregistry.Files, name string) (protoreflect.MessageDescriptor, error) {
	if md, ok := findMessage(files, protoreflect.FullName(name)); ok {
		return md, nil
	}

	var found protoreflect.MessageDescriptor
	files.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		if fd.Package() == "" {
			return true
		}
		if md, ok := findMessage(files, fd.Package().Append(protoreflect.Name(name))); ok {
			found = md
			return false
		}
		return true
	})
	if found == nil {
		return nil, errors.Errorf("couldn't find root message: %s", name)
	}
	return found, nil
}

func findMessage(files *protoregistry.Files, name protoreflect.FullName) (protoreflect.MessageDescriptor, bool) {
	d, err := files.FindDescriptorByName(name)
	if err != nil {
		return nil, false
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	return md, ok
}
