// Package dexmodel holds the entity graph of an analyzed application:
// classes, their methods and fields, and the descriptor index used to
// resolve external names against the program.
package dexmodel

import (
	"github.com/puzpuzpuz/xsync/v4"
)

// Access holds the access flags of a class, method, or field. Only the
// flags the analysis consumes are defined; unknown bits are preserved
// by the loader but never interpreted.
type Access uint32

const (
	AccPublic    Access = 0x0001
	AccPrivate   Access = 0x0002
	AccProtected Access = 0x0004
	AccStatic    Access = 0x0008
	AccFinal     Access = 0x0010
	AccInterface Access = 0x0200
	AccNative    Access = 0x0100
	AccAbstract  Access = 0x0400
)

// Has reports whether all bits of flag are set.
func (a Access) Has(flag Access) bool { return a&flag == flag }

// Entity is implemented by Class, Method, and Field. Every entity has a
// stable, unique descriptor string used as its identity throughout the
// analysis.
type Entity interface {
	// Descriptor returns the entity's stable identity string.
	Descriptor() string
}

// Class is a single class (or interface) in the analyzed program.
// Name is the internal class-type descriptor, e.g. "Lcom/example/Foo;".
type Class struct {
	Name        string
	SuperName   string // empty or unresolvable means "outside analyzed program"
	Access      Access
	Annotations []string // annotation type descriptors attached to the class
	Methods     []*Method
	Fields      []*Field
}

func (c *Class) Descriptor() string { return c.Name }

// IsInterface reports whether the class was declared as an interface.
func (c *Class) IsInterface() bool { return c.Access.Has(AccInterface) }

// Method is a method declared directly on a class.
type Method struct {
	Name        string
	Owner       *Class // back-reference, relation only
	Access      Access
	Annotations []string
}

// Descriptor returns "<class-descriptor>.<name>", unique because the
// graph holds one entry per declared method name per class.
func (m *Method) Descriptor() string { return m.Owner.Name + "." + m.Name }

// IsNative reports whether the method is declared platform-native.
func (m *Method) IsNative() bool { return m.Access.Has(AccNative) }

// Field is a field declared directly on a class.
type Field struct {
	Name        string
	Owner       *Class
	Access      Access
	Annotations []string
}

func (f *Field) Descriptor() string { return f.Owner.Name + "." + f.Name }

// IsStatic reports whether the field is a static (per-class) field.
func (f *Field) IsStatic() bool { return f.Access.Has(AccStatic) }

// AddMethod declares a method on c and returns it.
func (c *Class) AddMethod(name string, access Access) *Method {
	m := &Method{Name: name, Owner: c, Access: access}
	c.Methods = append(c.Methods, m)
	return m
}

// AddField declares a field on c and returns it.
func (c *Class) AddField(name string, access Access) *Field {
	f := &Field{Name: name, Owner: c, Access: access}
	c.Fields = append(c.Fields, f)
	return f
}

// Program is the set of classes in analysis scope. The Classes slice
// order is the stable scope order every scan iterates in; the index
// supports concurrent descriptor resolution during parallel scans.
type Program struct {
	Classes []*Class

	index *xsync.Map[string, *Class]
}

// NewProgram builds a program over the given classes. Class order is
// preserved as the scope order.
func NewProgram(classes []*Class) *Program {
	p := &Program{
		Classes: classes,
		index:   xsync.NewMap[string, *Class](),
	}
	for _, c := range classes {
		p.index.Store(c.Name, c)
	}
	return p
}

// Resolve looks up a class by internal descriptor. A miss is a normal
// outcome: it denotes a platform or third-party class outside the
// analyzed program.
func (p *Program) Resolve(descriptor string) (*Class, bool) {
	return p.index.Load(descriptor)
}

// ResolveDot resolves an external dotted class name, e.g. "com.example.Foo".
func (p *Program) ResolveDot(dotname string) (*Class, bool) {
	return p.Resolve(DotToDescriptor(dotname))
}

// Superclass resolves a class's superclass within the program, or
// (nil, false) when the superclass is absent or outside the program.
func (p *Program) Superclass(c *Class) (*Class, bool) {
	if c.SuperName == "" {
		return nil, false
	}
	return p.Resolve(c.SuperName)
}
