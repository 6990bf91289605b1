package dragndrop

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/jmigpin/xdnd/driver/xdriver/xutil"
)

// Converts between transferred bytes and the value kept in a DataObject.
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(b []byte) (interface{}, error)
}

type CodecFuncs struct {
	EncodeFn func(interface{}) ([]byte, error)
	DecodeFn func([]byte) (interface{}, error)
}

func (c CodecFuncs) Encode(v interface{}) ([]byte, error) { return c.EncodeFn(v) }
func (c CodecFuncs) Decode(b []byte) (interface{}, error) { return c.DecodeFn(b) }

//----------

// Registered once; the atoms are set by TypeRegistry.Intern and not changed afterwards.
type TypeHandler struct {
	Name       string // canonical name, also the key used in Data
	Aliases    []string
	Atom       xproto.Atom
	AliasAtoms []xproto.Atom
	Codec      Codec
}

// All the atoms that identify this handler, canonical first.
func (th *TypeHandler) Atoms() []xproto.Atom {
	return append([]xproto.Atom{th.Atom}, th.AliasAtoms...)
}

//----------

type TypeRegistry struct {
	handlers []*TypeHandler
	byName   map[string]*TypeHandler
	byAtom   map[xproto.Atom]*TypeHandler
	interned bool
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byName: map[string]*TypeHandler{},
		byAtom: map[xproto.Atom]*TypeHandler{},
	}
}

func (reg *TypeRegistry) Register(name string, aliases []string, codec Codec) error {
	if reg.interned {
		return fmt.Errorf("register %q: registry already interned", name)
	}
	if codec == nil {
		return fmt.Errorf("register %q: missing codec", name)
	}
	th := &TypeHandler{
		Name:    name,
		Aliases: append([]string(nil), aliases...),
		Codec:   codec,
	}
	for _, n := range th.names() {
		if _, ok := reg.byName[n]; ok {
			return fmt.Errorf("register %q: name already registered: %q", name, n)
		}
	}
	for _, n := range th.names() {
		reg.byName[n] = th
	}
	reg.handlers = append(reg.handlers, th)
	return nil
}

func (reg *TypeRegistry) MustRegister(name string, aliases []string, codec Codec) {
	if err := reg.Register(name, aliases, codec); err != nil {
		panic(err)
	}
}

// Resolves all names to atoms. Only the first call does work.
func (reg *TypeRegistry) Intern(in xutil.Interner) error {
	if reg.interned {
		return nil
	}
	for _, th := range reg.handlers {
		a, err := in.InternAtom(th.Name)
		if err != nil {
			return fmt.Errorf("intern %q: %w", th.Name, err)
		}
		th.Atom = a
		reg.byAtom[a] = th
		for _, alias := range th.Aliases {
			a, err := in.InternAtom(alias)
			if err != nil {
				return fmt.Errorf("intern %q: %w", alias, err)
			}
			th.AliasAtoms = append(th.AliasAtoms, a)
			reg.byAtom[a] = th
		}
	}
	reg.interned = true
	return nil
}

func (reg *TypeRegistry) Interned() bool {
	return reg.interned
}

func (reg *TypeRegistry) ResolveAtom(a xproto.Atom) (*TypeHandler, bool) {
	th, ok := reg.byAtom[a]
	return th, ok
}

func (reg *TypeRegistry) ResolveName(name string) (*TypeHandler, bool) {
	th, ok := reg.byName[name]
	return th, ok
}

func (reg *TypeRegistry) Handlers() []*TypeHandler {
	return append([]*TypeHandler(nil), reg.handlers...)
}

//----------

func (th *TypeHandler) names() []string {
	return append([]string{th.Name}, th.Aliases...)
}
