package xinput

import (
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/jmigpin/xdnd/util/uiutil/event"
)

// Keyboard knowledge needed while the pointer and keyboard are grabbed.
type Keyboard struct {
	escape []xproto.Keycode
}

func NewKeyboard(xu *xgbutil.XUtil) *Keyboard {
	keybind.Initialize(xu)
	return NewKeyboardCodes(keybind.StrToKeycodes(xu, "Escape")...)
}

func NewKeyboardCodes(escape ...xproto.Keycode) *Keyboard {
	return &Keyboard{escape: escape}
}

func (kb *Keyboard) IsEscape(kc xproto.Keycode) bool {
	for _, e := range kb.escape {
		if e == kc {
			return true
		}
	}
	return false
}

//----------

func Modifiers(v uint16) event.KeyModifiers {
	type pair struct {
		a uint16
		b event.KeyModifiers
	}
	pairs := []pair{
		{xproto.KeyButMaskShift, event.ModShift},
		{xproto.KeyButMaskControl, event.ModCtrl},
		{xproto.KeyButMaskLock, event.ModLock},
		{xproto.KeyButMaskMod1, event.Mod1},
		{xproto.KeyButMaskMod2, event.Mod2},
		{xproto.KeyButMaskMod3, event.Mod3},
		{xproto.KeyButMaskMod4, event.Mod4},
		{xproto.KeyButMaskMod5, event.Mod5},
	}
	var w event.KeyModifiers
	for _, p := range pairs {
		if v&p.a > 0 {
			w |= p.b
		}
	}
	return w
}

func Buttons(v uint16) event.MouseButtons {
	type pair struct {
		a uint16
		b event.MouseButton
	}
	pairs := []pair{
		{xproto.KeyButMaskButton1, event.ButtonLeft},
		{xproto.KeyButMaskButton2, event.ButtonMiddle},
		{xproto.KeyButMaskButton3, event.ButtonRight},
		{xproto.KeyButMaskButton4, event.ButtonWheelUp},
		{xproto.KeyButMaskButton5, event.ButtonWheelDown},
	}
	var w event.MouseButtons
	for _, p := range pairs {
		if v&p.a > 0 {
			w |= event.MouseButtons(p.b)
		}
	}
	return w
}

func Button(xb xproto.Button) event.MouseButton {
	switch xb {
	case 1:
		return event.ButtonLeft
	case 2:
		return event.ButtonMiddle
	case 3:
		return event.ButtonRight
	case 4:
		return event.ButtonWheelUp
	case 5:
		return event.ButtonWheelDown
	}
	return event.ButtonNone
}

// Mask bit of a button, as found in the state field of events.
func ButtonMask(xb xproto.Button) uint16 {
	if xb < 1 || xb > 5 {
		return 0
	}
	return xproto.KeyButMaskButton1 << (xb - 1)
}
