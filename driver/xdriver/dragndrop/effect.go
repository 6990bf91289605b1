package dragndrop

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/jmigpin/xdnd/util/uiutil/event"
)

type Effect int

const (
	EffectNone Effect = 0
	EffectCopy Effect = 1 << (iota - 1)
	EffectMove
	EffectLink
)

func (e Effect) Has(e2 Effect) bool {
	return e&e2 != 0
}

func (e Effect) String() string {
	if e == EffectNone {
		return "none"
	}
	u := []string{}
	if e.Has(EffectCopy) {
		u = append(u, "copy")
	}
	if e.Has(EffectMove) {
		u = append(u, "move")
	}
	if e.Has(EffectLink) {
		u = append(u, "link")
	}
	return strings.Join(u, "|")
}

// Parses a comma separated list (ex: "copy,move").
func ParseEffect(s string) (Effect, error) {
	e := EffectNone
	for _, f := range strings.Split(s, ",") {
		switch strings.TrimSpace(strings.ToLower(f)) {
		case "copy":
			e |= EffectCopy
		case "move":
			e |= EffectMove
		case "link":
			e |= EffectLink
		case "", "none":
		default:
			return EffectNone, fmt.Errorf("unknown effect: %q", f)
		}
	}
	return e, nil
}

// Highest priority single effect: copy > move > link.
func (e Effect) First() Effect {
	for _, e2 := range []Effect{EffectCopy, EffectMove, EffectLink} {
		if e.Has(e2) {
			return e2
		}
	}
	return EffectNone
}

// Chooses the proposed action from the allowed effects and the keyboard modifiers (shift: move, ctrl: copy, ctrl+shift: link).
func proposedEffect(allowed Effect, mods event.KeyModifiers) Effect {
	mods = mods.ClearLocks()
	var want Effect
	switch {
	case mods.HasAny(event.ModCtrl) && mods.HasAny(event.ModShift):
		want = EffectLink
	case mods.HasAny(event.ModShift):
		want = EffectMove
	case mods.HasAny(event.ModCtrl):
		want = EffectCopy
	}
	if want != EffectNone && allowed.Has(want) {
		return want
	}
	return allowed.First()
}

//----------

func (a *dndAtoms) effectAtom(e Effect) xproto.Atom {
	switch e.First() {
	case EffectCopy:
		return a.XdndActionCopy
	case EffectMove:
		return a.XdndActionMove
	case EffectLink:
		return a.XdndActionLink
	}
	return xproto.AtomNone
}

func (a *dndAtoms) atomEffect(atom xproto.Atom) Effect {
	switch atom {
	case a.XdndActionCopy:
		return EffectCopy
	case a.XdndActionMove:
		return EffectMove
	case a.XdndActionLink:
		return EffectLink
	}
	return EffectNone
}

func (a *dndAtoms) effectAtoms(e Effect) []xproto.Atom {
	u := []xproto.Atom{}
	for _, e2 := range []Effect{EffectCopy, EffectMove, EffectLink} {
		if e.Has(e2) {
			u = append(u, a.effectAtom(e2))
		}
	}
	return u
}
