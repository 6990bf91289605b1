package dragndrop

import (
	"fmt"
	"image"

	"github.com/BurntSushi/xgb/xproto"
)

// Drop callbacks of a window.
type Widget interface {
	AllowDrop() bool
	OnDragEnter(*DragEvent) Effect
	OnDragOver(*DragEvent) Effect
	OnDragDrop(*DragEvent) Effect
	OnDragLeave()
}

type DragEvent struct {
	Window    xproto.Window
	Point     image.Point // window coordinates
	RootPoint image.Point
	Data      DataObject
	Allowed   Effect // effects allowed by the source
	Action    Effect // action proposed by the source
}

//----------

type TargetPhase int

const (
	TargetIdle TargetPhase = iota
	TargetEntering
	TargetActive
)

// Per enter state of the drop target.
type DropTargetState struct {
	Point      image.Point // root coordinates
	Local      image.Point // target window coordinates
	Data       *Data
	Target     xproto.Window // deepest drop enabled window, or none
	Entered    bool          // enter callback called on target
	StatusSent bool          // status sent for the last position
	Action     Effect        // last action proposed by the source
	Allowed    Effect
	DropTime   xproto.Timestamp
	dropping   bool // drop received, waiting for transfers
}

// Drop target role. One drag can be over the application at a time.
type Target struct {
	dnd     *Dnd
	widgets map[xproto.Window]Widget

	phase    TargetPhase
	source   xproto.Window // window of the drag source
	toplevel xproto.Window // our window that received the enter
	version  int
	types    []xproto.Atom
	pending  PendingTransfer
	state    DropTargetState
}

func newTarget(dnd *Dnd) *Target {
	return &Target{dnd: dnd, widgets: map[xproto.Window]Widget{}}
}

func (t *Target) setWidget(win xproto.Window, w Widget) {
	if w == nil {
		delete(t.widgets, win)
		return
	}
	t.widgets[win] = w
}

func (t *Target) Phase() TargetPhase { return t.phase }
func (t *Target) Pending() *PendingTransfer { return &t.pending }
func (t *Target) State() *DropTargetState { return &t.state }
func (t *Target) Types() []xproto.Atom { return t.types }
func (t *Target) widget(win xproto.Window) Widget {
	if win == xproto.WindowNone {
		return nil
	}
	return t.widgets[win]
}

//----------

// First event to happen on a drag and drop.
func (t *Target) OnEnter(toplevel xproto.Window, m *EnterMsg) error {
	if t.phase != TargetIdle {
		// missed leave
		t.fireLeave()
		t.reset()
	}
	t.phase = TargetEntering
	t.source = m.Source
	t.toplevel = toplevel
	t.version = m.Version
	if t.version > Version {
		t.version = Version
	}
	t.state.Data = NewData()

	t.types = m.Types
	if m.MoreTypes {
		u, err := t.dnd.atomsProperty(m.Source, t.dnd.atoms.XdndTypeList)
		if err != nil {
			t.dnd.logf("dnd: enter: type list: %v", err)
		} else if len(u) > 0 {
			t.types = u
		}
	}

	// allowed actions
	if u, err := t.dnd.atomsProperty(m.Source, t.dnd.atoms.XdndActionList); err == nil {
		for _, a := range u {
			t.state.Allowed |= t.dnd.atoms.atomEffect(a)
		}
	}

	t.dnd.transfer.RequestTypes(toplevel, t.types, xproto.TimeCurrentTime, &t.pending)
	return nil
}

// After the enter event, it follows many position events.
func (t *Target) OnPosition(toplevel xproto.Window, m *PositionMsg) error {
	if t.phase == TargetIdle {
		return fmt.Errorf("position: missing enter event")
	}
	if m.Source != t.source {
		return fmt.Errorf("position: bad window: %v (expecting %v)", m.Source, t.source)
	}

	target, local, err := t.resolveTarget(m.Point)
	if err != nil {
		// can't reply without a target
		target = xproto.WindowNone
		t.dnd.logf("dnd: position: %v", err)
	}

	t.pending.positionReceived = true
	t.state.Point = m.Point
	t.state.Local = local
	t.state.Action = t.dnd.atoms.atomEffect(m.Action)
	t.state.StatusSent = false

	if target != t.state.Target {
		// deferred leave on the previous target
		t.fireLeave()
		t.state.Target = target
	}

	t.phase = TargetActive
	t.reply()
	return nil
}

// Drag released.
func (t *Target) OnDrop(toplevel xproto.Window, m *DropMsg) error {
	if t.phase != TargetActive || m.Source != t.source {
		// reply anyway so the source doesn't wait
		f := &FinishedMsg{Target: toplevel}
		if err := t.dnd.sendMessage(m.Source, m.Source, f); err != nil {
			return err
		}
		if t.phase == TargetIdle {
			return fmt.Errorf("drop: missing enter event")
		}
		if m.Source != t.source {
			return fmt.Errorf("drop: bad window: %v (expecting %v)", m.Source, t.source)
		}
		return fmt.Errorf("drop: missing position event")
	}
	t.state.DropTime = m.Time
	t.state.dropping = true
	if t.pending.Count() > 0 {
		// wait for the data
		return nil
	}
	return t.finishDrop()
}

func (t *Target) OnLeave(toplevel xproto.Window, m *LeaveMsg) error {
	if t.phase == TargetIdle {
		return nil
	}
	if m.Source != t.source {
		return fmt.Errorf("leave: bad window: %v (expecting %v)", m.Source, t.source)
	}
	t.fireLeave()
	t.reset()
	return nil
}

// Called after a request for data.
func (t *Target) onSelectionNotify(ev *xproto.SelectionNotifyEvent) error {
	if t.phase == TargetIdle || ev.Requestor != t.toplevel {
		return nil
	}
	if ev.Property == xproto.AtomNone {
		// conversion refused
		t.pending.done(ev.Target)
		return t.transferDone()
	}
	raw, typ, err := t.dnd.transfer.readProperty(ev.Requestor, ev.Property, true)
	switch {
	case err != nil:
		t.pending.done(ev.Target)
		t.dnd.logf("dnd: transfer %v: %v", ev.Target, err)
	case typ == t.dnd.atoms.Incr:
		// the property was deleted: the owner now writes the data in chunks
		// https://tronche.com/gui/x/icccm/sec-2.html#s-2.7.2
		if t.pending.startIncr(ev.Property, ev.Target) {
			return nil
		}
	case !t.dnd.transfer.sameType(ev.Target, typ):
		t.pending.done(ev.Target)
		t.dnd.logf("dnd: transfer %v: unexpected type %v", ev.Target, typ)
	default:
		t.dnd.transfer.OnTransferArrived(ev.Target, raw, t.state.Data, &t.pending)
	}
	return t.transferDone()
}

// Incremental transfer chunks. Returns false if the event is not for an incremental transfer in progress.
func (t *Target) onPropertyNotify(ev *xproto.PropertyNotifyEvent) (bool, error) {
	if t.phase == TargetIdle || ev.Window != t.toplevel {
		return false, nil
	}
	ir, ok := t.pending.incr[ev.Atom]
	if !ok {
		return false, nil
	}
	if ev.State != xproto.PropertyNewValue {
		return true, nil
	}
	raw, typ, err := t.dnd.transfer.readProperty(ev.Window, ev.Atom, true)
	switch {
	case err != nil:
		t.pending.endIncr(ev.Atom)
		t.pending.done(ir.typ)
		t.dnd.logf("dnd: transfer %v: %v", ir.typ, err)
	case len(raw) > 0 && !t.dnd.transfer.sameType(ir.typ, typ):
		t.pending.endIncr(ev.Atom)
		t.pending.done(ir.typ)
		t.dnd.logf("dnd: transfer %v: unexpected type %v", ir.typ, typ)
	case len(raw) > 0:
		ir.buf = append(ir.buf, raw...)
		return true, nil
	default:
		// zero length chunk: end of data
		t.pending.endIncr(ev.Atom)
		t.dnd.transfer.OnTransferArrived(ir.typ, ir.buf, t.state.Data, &t.pending)
	}
	return true, t.transferDone()
}

// Replies once all the requested data arrived.
func (t *Target) transferDone() error {
	if t.pending.Count() > 0 {
		return nil
	}
	// position-before-data case: the enter callback was deferred
	t.reply()
	if t.state.dropping {
		return t.finishDrop()
	}
	return nil
}

//----------

// Calls the enter/over callbacks and sends one status per position. Needs all the data and a position.
func (t *Target) reply() {
	if t.state.StatusSent || !t.pending.ready() {
		return
	}
	t.state.StatusSent = true

	eff := EffectNone
	if w := t.widget(t.state.Target); w != nil {
		ev := t.dragEvent()
		if !t.state.Entered {
			t.state.Entered = true
			eff = w.OnDragEnter(ev)
		} else {
			eff = w.OnDragOver(ev)
		}
		eff = t.allowedEffect(eff)
	}
	st := &StatusMsg{
		Target:        t.toplevel,
		Accept:        eff != EffectNone,
		WantPositions: true,
		Action:        t.dnd.atoms.effectAtom(eff),
	}
	if err := t.dnd.sendMessage(t.source, t.source, st); err != nil {
		t.dnd.logf("dnd: %v", err)
	}
}

func (t *Target) finishDrop() error {
	eff := EffectNone
	if w := t.widget(t.state.Target); w != nil && t.state.Entered {
		eff = t.allowedEffect(w.OnDragDrop(t.dragEvent()))
	}
	f := &FinishedMsg{
		Target:   t.toplevel,
		Accepted: eff != EffectNone,
		Action:   t.dnd.atoms.effectAtom(eff),
	}
	source := t.source
	t.reset()
	return t.dnd.sendMessage(source, source, f)
}

func (t *Target) fireLeave() {
	if !t.state.Entered {
		return
	}
	t.state.Entered = false
	if w := t.widget(t.state.Target); w != nil {
		w.OnDragLeave()
	}
}

func (t *Target) reset() {
	t.phase = TargetIdle
	t.source = xproto.WindowNone
	t.toplevel = xproto.WindowNone
	t.version = 0
	t.types = nil
	t.pending.Reset()
	t.state = DropTargetState{}
}

func (t *Target) allowedEffect(eff Effect) Effect {
	allowed := t.state.Allowed | t.state.Action
	if allowed == EffectNone {
		return eff.First()
	}
	if e := (eff & allowed).First(); e != EffectNone {
		return e
	}
	return EffectNone
}

func (t *Target) dragEvent() *DragEvent {
	allowed := t.state.Allowed
	if allowed == EffectNone {
		allowed = t.state.Action
	}
	return &DragEvent{
		Window:    t.state.Target,
		Point:     t.state.Local,
		RootPoint: t.state.Point,
		Data:      t.state.Data,
		Allowed:   allowed,
		Action:    t.state.Action,
	}
}

//----------

// Deepest drop enabled window under the root point, walking the children of the toplevel. The innermost enabled window wins.
func (t *Target) resolveTarget(p image.Point) (xproto.Window, image.Point, error) {
	root := t.dnd.disp.Root()
	var target xproto.Window
	local := image.Point{}

	win := t.toplevel
	for depth := 0; win != xproto.WindowNone && depth < maxTreeDepth; depth++ {
		r, err := t.dnd.disp.TranslateCoordinates(root, win, int16(p.X), int16(p.Y))
		if err != nil {
			return xproto.WindowNone, image.Point{}, err
		}
		if w := t.widget(win); w != nil && w.AllowDrop() {
			target = win
			local = image.Point{int(r.DstX), int(r.DstY)}
		}
		win = r.Child
	}
	return target, local, nil
}

const maxTreeDepth = 64
