package xutil

import (
	"fmt"
	"reflect"

	"github.com/BurntSushi/xgb/xproto"
)

// Interns atom names. Implemented by the x window and by the fake server.
type Interner interface {
	InternAtom(name string) (xproto.Atom, error)
}

// Tags can be used with: `loadAtoms:"atomname"`.
// "st" should be a pointer to a struct with xproto.Atom fields.
func LoadAtoms(in Interner, st any) error {
	val := reflect.ValueOf(st)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("loadatoms: expecting pointer to struct: %T", st)
	}
	val = val.Elem()
	typ := val.Type()
	atomType := reflect.TypeOf(xproto.Atom(0))
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		if sf.Type != atomType {
			continue
		}
		name := sf.Name
		if tagStr := sf.Tag.Get("loadAtoms"); tagStr != "" {
			name = tagStr
		}
		atom, err := in.InternAtom(name)
		if err != nil {
			return fmt.Errorf("loadatoms: %v: %w", name, err)
		}
		val.Field(i).Set(reflect.ValueOf(atom))
	}
	return nil
}

//----------

type AtomNamer interface {
	AtomName(atom xproto.Atom) (string, error)
}

// Useful for debug messages.
func AtomsNames(an AtomNamer, atoms ...xproto.Atom) []string {
	u := []string{}
	for _, a := range atoms {
		name, err := an.AtomName(a)
		if err != nil {
			name = fmt.Sprintf("<%d:%v>", a, err)
		}
		u = append(u, name)
	}
	return u
}
