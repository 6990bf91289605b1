package dragndrop

import (
	"encoding/binary"
	"log"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/jmigpin/xdnd/driver/xdriver/xutil"
	"github.com/pkg/errors"
)

// protocol: https://www.freedesktop.org/wiki/Specifications/XDND/
// explanation with example: http://www.edwardrosten.com/code/dist/x_clipboard-1.1/paste.cc

const (
	Version    = 5
	minVersion = 3
)

// Drag and drop. Implements both the drag source and the drop target roles for the windows of one display connection.
// Not safe for concurrent use: all calls must come from the goroutine running the event loop.
type Dnd struct {
	disp Display
	kb   Keyboard
	reg  *TypeRegistry

	atoms    dndAtoms
	transfer *Transfer
	target   *Target
	source   *Source
	pump     *pump

	Opt Options
}

type Options struct {
	PollInterval  time.Duration // drag polling timer
	FinishTimeout time.Duration // max wait for the finished message after a drop
	ChunkSize     int           // bytes per property read

	// Max bytes written in one property when serving data (zero: no limit). Bigger payloads are refused.
	MaxPropertySize int

	Logf func(format string, args ...interface{})

	// Called by the drag loop with events that are not for the dnd engine.
	Forward func(ev xgb.Event)
}

func DefaultOptions() Options {
	return Options{
		PollInterval:  100 * time.Millisecond,
		FinishTimeout: 1500 * time.Millisecond,
		ChunkSize:     64 * 1024,
		Logf:          log.Printf,
	}
}

func NewDnd(disp Display, kb Keyboard, reg *TypeRegistry) (*Dnd, error) {
	dnd := &Dnd{disp: disp, kb: kb, reg: reg, Opt: DefaultOptions()}
	if err := xutil.LoadAtoms(disp, &dnd.atoms); err != nil {
		return nil, errors.Wrap(err, "dnd atoms")
	}
	if err := reg.Intern(disp); err != nil {
		return nil, errors.Wrap(err, "dnd types")
	}
	dnd.transfer = &Transfer{dnd: dnd}
	dnd.target = newTarget(dnd)
	dnd.source = &Source{dnd: dnd}
	dnd.pump = &pump{dnd: dnd}
	return dnd, nil
}

func (dnd *Dnd) Registry() *TypeRegistry { return dnd.reg }
func (dnd *Dnd) Transfer() *Transfer     { return dnd.transfer }
func (dnd *Dnd) Target() *Target         { return dnd.target }

// Starts a drag from win (see Source.StartDrag). Must be called while a mouse button is pressed.
func (dnd *Dnd) StartDrag(win xproto.Window, payload interface{}, allowed Effect, src DragSource) (Effect, error) {
	return dnd.source.StartDrag(win, payload, allowed, src)
}

//----------

// Allow other applications to know this window is dnd aware. Should be set on toplevel windows.
func (dnd *Dnd) SetAware(win xproto.Window) error {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, Version)
	err := dnd.disp.ChangeProperty(win, dnd.atoms.XdndAware, xproto.AtomAtom, 32, data)
	return errors.Wrap(err, "set xdndaware")
}

// Sets the drop callbacks of a window (toplevel or child). A nil widget removes it.
func (dnd *Dnd) SetWidget(win xproto.Window, w Widget) {
	dnd.target.setWidget(win, w)
}

//----------

// Handles dnd client messages, xdndselection requests/notifications and the property notifications of incremental transfers. Returns false if the event is not for the dnd engine.
func (dnd *Dnd) HandleEvent(ev xgb.Event) bool {
	switch t := ev.(type) {
	case xproto.ClientMessageEvent:
		return dnd.onClientMessage(&t)
	case xproto.SelectionRequestEvent:
		if t.Selection != dnd.atoms.XdndSelection {
			return false
		}
		dnd.onSelectionRequest(&t)
		return true
	case xproto.SelectionNotifyEvent:
		if t.Selection != dnd.atoms.XdndSelection {
			return false
		}
		if err := dnd.target.onSelectionNotify(&t); err != nil {
			dnd.logf("dnd: selection notify: %v", err)
		}
		return true
	case xproto.PropertyNotifyEvent:
		ok, err := dnd.target.onPropertyNotify(&t)
		if err != nil {
			dnd.logf("dnd: property notify: %v", err)
		}
		return ok
	}
	return false
}

func (dnd *Dnd) onClientMessage(ev *xproto.ClientMessageEvent) bool {
	m, ok, err := dnd.atoms.parseMessage(ev)
	if !ok {
		return false
	}
	if err != nil {
		dnd.logf("dnd: %v", err)
		return true
	}
	switch t := m.(type) {
	case *EnterMsg:
		err = dnd.target.OnEnter(ev.Window, t)
	case *PositionMsg:
		err = dnd.target.OnPosition(ev.Window, t)
	case *DropMsg:
		err = dnd.target.OnDrop(ev.Window, t)
	case *LeaveMsg:
		err = dnd.target.OnLeave(ev.Window, t)
	case *StatusMsg:
		dnd.source.HandleStatus(t)
	case *FinishedMsg:
		dnd.source.HandleFinished(t)
	}
	if err != nil {
		dnd.logf("dnd: %v", err)
	}
	return true
}

func (dnd *Dnd) onSelectionRequest(ev *xproto.SelectionRequestEvent) {
	s := dnd.source.session
	if s == nil || ev.Owner != s.Window {
		// not dragging: no data to give
		return
	}
	if _, err := dnd.transfer.ServeRequest(ev, s.Data, s.Types); err != nil {
		dnd.logf("dnd: serve request: %v", err)
	}
}

//----------

func (dnd *Dnd) sendMessage(dest, win xproto.Window, m Message) error {
	cme := dnd.atoms.clientMessage(win, m)
	err := dnd.disp.SendEvent(dest, cme)
	return errors.Wrapf(err, "send %T", m)
}

// Returns the xdnd version advertised by the window, or zero.
func (dnd *Dnd) awareVersion(win xproto.Window) (int, error) {
	r, err := dnd.disp.GetProperty(win, dnd.atoms.XdndAware, false, 0, 1)
	if err != nil {
		return 0, errors.Wrap(err, "get xdndaware")
	}
	if r.Type != xproto.AtomAtom || r.Format != 32 || len(r.Value) < 4 {
		return 0, nil
	}
	return int(xgb.Get32(r.Value)), nil
}

// Window that receives the messages for win, if win has a valid XdndProxy.
func (dnd *Dnd) proxyWindow(win xproto.Window) xproto.Window {
	get := func(w xproto.Window) xproto.Window {
		r, err := dnd.disp.GetProperty(w, dnd.atoms.XdndProxy, false, 0, 1)
		if err != nil || r.Type != xproto.AtomWindow || len(r.Value) < 4 {
			return xproto.WindowNone
		}
		return xproto.Window(xgb.Get32(r.Value))
	}
	proxy := get(win)
	if proxy == xproto.WindowNone {
		return win
	}
	// the proxy must point to itself
	if get(proxy) != proxy {
		return win
	}
	return proxy
}

// Reads a list of atoms property (XdndTypeList, XdndActionList).
func (dnd *Dnd) atomsProperty(win xproto.Window, prop xproto.Atom) ([]xproto.Atom, error) {
	b, err := dnd.transfer.ReadChunked(win, prop, false)
	if err != nil {
		return nil, err
	}
	u := []xproto.Atom{}
	for i := 0; i+4 <= len(b); i += 4 {
		u = append(u, xproto.Atom(xgb.Get32(b[i:])))
	}
	return u, nil
}

func (dnd *Dnd) setAtomsProperty(win xproto.Window, prop xproto.Atom, atoms []xproto.Atom) error {
	b := atomsBytes(atoms)
	err := dnd.disp.ChangeProperty(win, prop, xproto.AtomAtom, 32, b)
	return errors.Wrap(err, "set atoms property")
}

func (dnd *Dnd) logf(f string, args ...interface{}) {
	if dnd.Opt.Logf != nil {
		dnd.Opt.Logf(f, args...)
	}
}

func atomsBytes(atoms []xproto.Atom) []byte {
	b := make([]byte, 4*len(atoms))
	for i, a := range atoms {
		xgb.Put32(b[i*4:], uint32(a))
	}
	return b
}

//----------

type dndAtoms struct {
	XdndAware    xproto.Atom
	XdndEnter    xproto.Atom
	XdndLeave    xproto.Atom
	XdndPosition xproto.Atom
	XdndStatus   xproto.Atom
	XdndDrop     xproto.Atom
	XdndFinished xproto.Atom

	XdndActionCopy    xproto.Atom
	XdndActionMove    xproto.Atom
	XdndActionLink    xproto.Atom
	XdndActionAsk     xproto.Atom
	XdndActionPrivate xproto.Atom
	XdndActionList    xproto.Atom

	XdndProxy    xproto.Atom
	XdndTypeList xproto.Atom

	XdndSelection xproto.Atom
	Targets       xproto.Atom `loadAtoms:"TARGETS"`
	Incr          xproto.Atom `loadAtoms:"INCR"`
}
