package dragndrop

import (
	"image"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/jmigpin/xdnd/driver/xdriver/xinput"
	"github.com/jmigpin/xdnd/util/uiutil/event"
	"github.com/pkg/errors"
)

type DragState int

const (
	DragNone DragState = iota
	DragBeginning
	DragDragging
	DragEntered
)

func (s DragState) String() string {
	switch s {
	case DragNone:
		return "none"
	case DragBeginning:
		return "beginning"
	case DragDragging:
		return "dragging"
	case DragEntered:
		return "entered"
	}
	return "unknown"
}

type DragAction int

const (
	DragContinue DragAction = iota
	DragDrop
	DragCancel
)

// Optional callbacks of the application starting a drag.
type DragSource interface {
	// Returns true to use the default cursors.
	OnGiveFeedback(eff Effect) bool
	// Called once per poll tick.
	OnQueryContinueDrag(escape bool, mods event.KeyModifiers, buttons event.MouseButtons) DragAction
}

var ErrDragActive = errors.New("drag already active")

// Single drag per process.
var dragActive int32

//----------

// Exists only while a drag is active (State != DragNone).
type DragSession struct {
	Window   xproto.Window
	Data     DataObject
	Allowed  Effect
	Types    []xproto.Atom // advertised, in priority order
	State    DragState
	Toplevel xproto.Window // last aware window under the pointer
	Proxy    xproto.Window // receives the messages for the toplevel
	Version  int
	Accept   bool   // from the last status
	Action   Effect // from the last status
	Buttons  event.MouseButtons

	src      DragSource
	pos      image.Point // latest pointer position (root)
	mods     event.KeyModifiers
	escape   bool // escape pressed since the last tick
	posSent  bool // position sent since the enter
	waiting  bool // position sent, status not yet received
	lastPos  image.Point
	lastMods event.KeyModifiers
	dropSent bool
	deadline time.Time // finished timeout
	cursor   Cursor
	result   Effect
}

//----------

// Drag source role.
type Source struct {
	dnd     *Dnd
	session *DragSession
}

// Blocks until the drag ends. Returns the effect performed by the target, or EffectNone if the drag was cancelled or rejected. Errors are only returned on unrecoverable display failures.
func (s *Source) StartDrag(win xproto.Window, payload interface{}, allowed Effect, src DragSource) (Effect, error) {
	if !atomic.CompareAndSwapInt32(&dragActive, 0, 1) {
		return EffectNone, ErrDragActive
	}
	defer atomic.StoreInt32(&dragActive, 0)

	sess := &DragSession{
		Window:  win,
		Data:    payloadData(payload),
		Allowed: allowed,
		State:   DragBeginning,
		src:     src,
	}
	sess.Types = s.dnd.transfer.advertisedTypes(sess.Data)
	s.session = sess
	defer func() { s.session = nil }()

	if !s.claimSelection(win) {
		return EffectNone, nil
	}
	if err := s.dnd.setAtomsProperty(win, s.dnd.atoms.XdndTypeList, sess.Types); err != nil {
		s.releaseSelection()
		return EffectNone, err
	}
	actions := s.dnd.atoms.effectAtoms(allowed)
	if err := s.dnd.setAtomsProperty(win, s.dnd.atoms.XdndActionList, actions); err != nil {
		s.releaseSelection()
		return EffectNone, err
	}
	if err := s.dnd.disp.Grab(win); err != nil {
		s.dnd.logf("dnd: grab: %v", err)
		s.releaseSelection()
		return EffectNone, nil
	}

	eff, err := s.run(sess)
	s.teardown(sess)
	return eff, err
}

func (s *Source) claimSelection(win xproto.Window) bool {
	a := s.dnd.atoms.XdndSelection
	if err := s.dnd.disp.SetSelectionOwner(win, a, xproto.TimeCurrentTime); err != nil {
		s.dnd.logf("dnd: set selection owner: %v", err)
		return false
	}
	owner, err := s.dnd.disp.SelectionOwner(a)
	if err != nil {
		s.dnd.logf("dnd: selection owner: %v", err)
		return false
	}
	if owner != win {
		s.dnd.logf("dnd: selection not owned (owner=%v)", owner)
		return false
	}
	return true
}

func (s *Source) releaseSelection() {
	a := s.dnd.atoms.XdndSelection
	if err := s.dnd.disp.SetSelectionOwner(xproto.WindowNone, a, xproto.TimeCurrentTime); err != nil {
		s.dnd.logf("dnd: release selection: %v", err)
	}
}

func (s *Source) run(sess *DragSession) (Effect, error) {
	qp, err := s.dnd.disp.QueryPointer(s.dnd.disp.Root())
	if err != nil {
		return EffectNone, errors.Wrap(err, "query pointer")
	}
	sess.pos = image.Point{int(qp.RootX), int(qp.RootY)}
	sess.mods = xinput.Modifiers(qp.Mask)
	sess.Buttons = xinput.Buttons(qp.Mask)
	sess.State = DragDragging

	// prime the type negotiation on the originating window
	if v, err := s.dnd.awareVersion(sess.Window); err == nil && v >= minVersion {
		if err := s.enter(sess, sess.Window, v); err != nil && fatal(err) {
			return EffectNone, err
		}
	}

	return s.dnd.pump.run(sess)
}

func (s *Source) teardown(sess *DragSession) {
	if err := s.dnd.disp.SetCursor(DefaultCursor); err != nil {
		s.dnd.logf("dnd: %v", err)
	}
	if err := s.dnd.disp.Ungrab(); err != nil {
		s.dnd.logf("dnd: ungrab: %v", err)
	}
	sess.State = DragNone
}

//----------

// Poll tick: checks if the drag should continue and follows the pointer.
func (s *Source) tick(sess *DragSession) error {
	if sess.State == DragNone || sess.dropSent {
		return nil
	}
	switch s.queryContinue(sess) {
	case DragCancel:
		return s.cancel(sess)
	case DragDrop:
		return s.release(sess)
	}
	return s.HandleMouseOver(sess)
}

func (s *Source) queryContinue(sess *DragSession) DragAction {
	escape := sess.escape
	sess.escape = false
	if sess.src != nil {
		return sess.src.OnQueryContinueDrag(escape, sess.mods, sess.Buttons)
	}
	if escape {
		return DragCancel
	}
	return DragContinue
}

// Follows the pointer at the latest recorded position. Also runs when no motion arrived, which covers windows appearing or moving under a still pointer.
func (s *Source) HandleMouseOver(sess *DragSession) error {
	toplevel, version, err := s.findToplevel(sess.pos)
	if err != nil {
		if fatal(err) {
			return err
		}
		s.dnd.logf("dnd: %v", err)
		toplevel = xproto.WindowNone
	}

	if toplevel != sess.Toplevel {
		if err := s.leave(sess); err != nil {
			return err
		}
		if toplevel != xproto.WindowNone {
			if err := s.enter(sess, toplevel, version); err != nil {
				return err
			}
		}
		s.feedback(sess)
	}

	if sess.State != DragEntered {
		return nil
	}
	if sess.waiting {
		// the latest position is sent when the status arrives
		return nil
	}
	if !s.moved(sess) {
		return nil
	}
	return s.position(sess)
}

// Stationary pointer: only the first position after the enter.
func (s *Source) moved(sess *DragSession) bool {
	stationary := sess.pos == sess.lastPos && sess.mods == sess.lastMods
	return !stationary || !sess.posSent
}

// First window under the pointer (walking down from the root) with a usable XdndAware.
func (s *Source) findToplevel(p image.Point) (xproto.Window, int, error) {
	root := s.dnd.disp.Root()
	win := root
	for depth := 0; depth < maxTreeDepth; depth++ {
		r, err := s.dnd.disp.TranslateCoordinates(root, win, int16(p.X), int16(p.Y))
		if err != nil {
			return xproto.WindowNone, 0, errors.Wrap(err, "translate coordinates")
		}
		if r.Child == xproto.WindowNone {
			break
		}
		win = r.Child
		v, err := s.dnd.awareVersion(win)
		if err != nil {
			return xproto.WindowNone, 0, err
		}
		if v >= minVersion {
			return win, v, nil
		}
	}
	return xproto.WindowNone, 0, nil
}

//----------

func (s *Source) enter(sess *DragSession, toplevel xproto.Window, version int) error {
	sess.Toplevel = toplevel
	sess.Proxy = s.dnd.proxyWindow(toplevel)
	sess.Version = version
	if sess.Version > Version {
		sess.Version = Version
	}
	sess.Accept = false
	sess.Action = EffectNone
	sess.posSent = false
	sess.waiting = false

	m := &EnterMsg{
		Source:    sess.Window,
		Version:   sess.Version,
		MoreTypes: len(sess.Types) > 3,
		Types:     sess.Types,
	}
	if err := s.dnd.sendMessage(sess.Proxy, sess.Toplevel, m); err != nil {
		// retried on the next tick
		sess.Toplevel = xproto.WindowNone
		sess.Proxy = xproto.WindowNone
		return err
	}
	sess.State = DragEntered
	return nil
}

func (s *Source) position(sess *DragSession) error {
	act := proposedEffect(sess.Allowed, sess.mods)
	m := &PositionMsg{
		Source: sess.Window,
		Point:  sess.pos,
		Time:   xproto.TimeCurrentTime,
		Action: s.dnd.atoms.effectAtom(act),
	}
	sess.posSent = true
	sess.waiting = true
	sess.lastPos = sess.pos
	sess.lastMods = sess.mods
	return s.dnd.sendMessage(sess.Proxy, sess.Toplevel, m)
}

func (s *Source) leave(sess *DragSession) error {
	if sess.State != DragEntered {
		return nil
	}
	m := &LeaveMsg{Source: sess.Window}
	err := s.dnd.sendMessage(sess.Proxy, sess.Toplevel, m)
	sess.State = DragDragging
	sess.Toplevel = xproto.WindowNone
	sess.Proxy = xproto.WindowNone
	sess.Accept = false
	sess.Action = EffectNone
	sess.posSent = false
	sess.waiting = false
	return err
}

// Button released (or drop requested by the drag source callbacks).
func (s *Source) release(sess *DragSession) error {
	if sess.dropSent {
		return nil
	}
	if sess.State == DragEntered && sess.Accept {
		return s.drop(sess)
	}
	return s.cancel(sess)
}

func (s *Source) drop(sess *DragSession) error {
	m := &DropMsg{Source: sess.Window, Time: xproto.TimeCurrentTime}
	if err := s.dnd.sendMessage(sess.Proxy, sess.Toplevel, m); err != nil {
		s.end(sess, EffectNone)
		return err
	}
	sess.dropSent = true
	sess.deadline = time.Now().Add(s.dnd.Opt.FinishTimeout)
	return nil
}

func (s *Source) cancel(sess *DragSession) error {
	err := s.leave(sess)
	s.end(sess, EffectNone)
	return err
}

func (s *Source) end(sess *DragSession, eff Effect) {
	sess.result = eff
	sess.State = DragNone
	s.setCursor(sess, DefaultCursor)
}

//----------

func (s *Source) HandleStatus(m *StatusMsg) {
	sess := s.session
	if sess == nil || sess.State != DragEntered || m.Target != sess.Toplevel {
		// stale
		return
	}
	sess.Accept = m.Accept
	sess.Action = EffectNone
	if m.Accept {
		sess.Action = s.dnd.atoms.atomEffect(m.Action)
		if sess.Action == EffectNone {
			// private or ask: keep what was proposed
			sess.Action = proposedEffect(sess.Allowed, sess.mods)
		}
	}
	if sess.dropSent {
		return
	}
	s.feedback(sess)
	sess.waiting = false
	if s.moved(sess) {
		if err := s.position(sess); err != nil {
			s.dnd.logf("dnd: %v", err)
		}
	}
}

func (s *Source) HandleFinished(m *FinishedMsg) {
	sess := s.session
	if sess == nil || !sess.dropSent || sess.State == DragNone || m.Target != sess.Toplevel {
		return
	}
	eff := EffectNone
	if sess.Accept {
		eff = sess.Action
	}
	if sess.Version >= 5 {
		eff = EffectNone
		if m.Accepted {
			eff = s.dnd.atoms.atomEffect(m.Action)
			if eff == EffectNone {
				eff = sess.Action
			}
		}
	}
	s.end(sess, eff)
}

func (s *Source) feedback(sess *DragSession) {
	eff := EffectNone
	if sess.State == DragEntered && sess.Accept {
		eff = sess.Action
	}
	if sess.src != nil && !sess.src.OnGiveFeedback(eff) {
		return
	}
	c := NoDropCursor
	switch eff {
	case EffectCopy:
		c = CopyCursor
	case EffectMove:
		c = MoveCursor
	case EffectLink:
		c = LinkCursor
	}
	s.setCursor(sess, c)
}

func (s *Source) setCursor(sess *DragSession, c Cursor) {
	if sess.cursor == c {
		return
	}
	sess.cursor = c
	if err := s.dnd.disp.SetCursor(c); err != nil {
		s.dnd.logf("dnd: %v", err)
	}
}

//----------

func fatal(err error) bool {
	return errors.Is(err, ErrDisplayClosed)
}
