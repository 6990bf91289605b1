package wmprotocols

import (
	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/jmigpin/xdnd/driver/xdriver/xutil"
)

// https://tronche.com/gui/x/icccm/sec-4.html#s-4.2.8.1

type Props interface {
	xutil.Interner
	ChangeProperty(win xproto.Window, prop, typ xproto.Atom, format byte, data []byte) error
}

type WMP struct {
	win   xproto.Window
	atoms wmpAtoms
}

func NewWMP(p Props, win xproto.Window) (*WMP, error) {
	wmp := &WMP{win: win}
	if err := xutil.LoadAtoms(p, &wmp.atoms); err != nil {
		return nil, err
	}
	// xprop says that it should be 32 bit
	data := make([]byte, 4)
	xgb.Put32(data, uint32(wmp.atoms.WM_DELETE_WINDOW))
	if err := p.ChangeProperty(win, wmp.atoms.WM_PROTOCOLS, xproto.AtomAtom, 32, data); err != nil {
		return nil, err
	}
	return wmp, nil
}

// Window manager asking the window to close.
func (wmp *WMP) IsDeleteWindow(ev *xproto.ClientMessageEvent) bool {
	if ev.Type != wmp.atoms.WM_PROTOCOLS || ev.Window != wmp.win {
		return false
	}
	if ev.Format != 32 {
		return false
	}
	return xproto.Atom(ev.Data.Data32[0]) == wmp.atoms.WM_DELETE_WINDOW
}

type wmpAtoms struct {
	WM_PROTOCOLS     xproto.Atom
	WM_DELETE_WINDOW xproto.Atom
}
