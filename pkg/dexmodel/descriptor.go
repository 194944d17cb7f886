package dexmodel

import "strings"

// DotToDescriptor translates an external dotted class name into the
// internal class-type descriptor: "com.example.Foo" -> "Lcom/example/Foo;".
func DotToDescriptor(dotname string) string {
	var b strings.Builder
	b.Grow(len(dotname) + 2)
	b.WriteByte('L')
	for i := 0; i < len(dotname); i++ {
		if dotname[i] == '.' {
			b.WriteByte('/')
		} else {
			b.WriteByte(dotname[i])
		}
	}
	b.WriteByte(';')
	return b.String()
}

// DescriptorToDot is the inverse of DotToDescriptor. Inputs that are not
// class-type descriptors are returned unchanged.
func DescriptorToDot(descriptor string) string {
	if !IsClassDescriptor(descriptor) {
		return descriptor
	}
	inner := descriptor[1 : len(descriptor)-1]
	return strings.ReplaceAll(inner, "/", ".")
}

// IsClassDescriptor reports whether s has the "L...;" class-type shape.
func IsClassDescriptor(s string) bool {
	return len(s) >= 3 && s[0] == 'L' && s[len(s)-1] == ';'
}
