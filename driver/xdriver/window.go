package xdriver

import (
	"image"
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/mousebind"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/BurntSushi/xgbutil/xwindow"
	"github.com/jmigpin/xdnd/driver/xdriver/wmprotocols"
	"github.com/jmigpin/xdnd/driver/xdriver/xcursors"
	"github.com/jmigpin/xdnd/driver/xdriver/xinput"
	"github.com/jmigpin/xdnd/driver/xdriver/xutil"
	"github.com/pkg/errors"
)

// Connection to the x server with one top level window. Implements the requests the dnd engine needs.
type Window struct {
	XU     *xgbutil.XUtil
	Conn   *xgb.Conn
	Window xproto.Window

	Cursors  *xcursors.Cursors
	Keyboard *xinput.Keyboard
	Wmp      *wmprotocols.WMP

	closeOnce sync.Once
	events    chan eventOrErr

	grabbed bool
	cursor  xcursors.Cursor
}

type eventOrErr struct {
	ev  xgb.Event
	err error
}

func NewWindow(name string, r image.Rectangle) (*Window, error) {
	xu, err := xgbutil.NewConnDisplay(os.Getenv("DISPLAY"))
	if err != nil {
		return nil, errors.Wrap(err, "x conn")
	}
	win := &Window{
		XU:     xu,
		Conn:   xu.Conn(),
		events: make(chan eventOrErr, 64),
	}
	if err := win.initialize(name, r); err != nil {
		xu.Conn().Close()
		return nil, errors.Wrap(err, "win init")
	}
	go win.eventLoop()
	return win, nil
}

func (win *Window) initialize(name string, r image.Rectangle) error {
	w, err := win.CreateWindow(win.XU.RootWin(), r)
	if err != nil {
		return err
	}
	win.Window = w

	// names shown by the window manager
	if err := icccm.WmNameSet(win.XU, w, name); err != nil {
		return err
	}
	if err := ewmh.WmNameSet(win.XU, w, name); err != nil {
		return err
	}
	class := &icccm.WmClass{Instance: name, Class: name}
	if err := icccm.WmClassSet(win.XU, w, class); err != nil {
		return err
	}

	win.Keyboard = xinput.NewKeyboard(win.XU)
	win.Cursors = xcursors.NewCursors(win.XU)

	wmp, err := wmprotocols.NewWMP(win, w)
	if err != nil {
		return err
	}
	win.Wmp = wmp

	xproto.MapWindow(win.Conn, w)
	return nil
}

// Creates a mapped child window that receives pointer, key and structure events.
func (win *Window) CreateWindow(parent xproto.Window, r image.Rectangle) (xproto.Window, error) {
	xw, err := xwindow.Generate(win.XU)
	if err != nil {
		return 0, err
	}
	mask := xproto.CwBackPixel | xproto.CwEventMask
	evMask := uint32(0 |
		xproto.EventMaskStructureNotify |
		xproto.EventMaskExposure |
		xproto.EventMaskPointerMotion |
		xproto.EventMaskButtonPress |
		xproto.EventMaskButtonRelease |
		xproto.EventMaskKeyPress |
		xproto.EventMaskKeyRelease |
		xproto.EventMaskPropertyChange) // incremental transfers
	xw.Create(parent, r.Min.X, r.Min.Y, r.Dx(), r.Dy(), mask, 0xffffff, evMask)
	if parent != win.XU.RootWin() {
		xw.Map()
	}
	return xw.Id, nil
}

func (win *Window) Close() error {
	win.closeOnce.Do(func() {
		win.Cursors.Free()
		win.Conn.Close()
	})
	return nil
}

//----------

func (win *Window) eventLoop() {
	defer close(win.events)
	for {
		ev, xerr := win.Conn.WaitForEvent()
		if ev == nil && xerr == nil {
			return // closed
		}
		if xerr != nil {
			win.events <- eventOrErr{err: xerr}
		}
		if ev != nil {
			win.events <- eventOrErr{ev: ev}
		}
	}
}

func (win *Window) PollEvent(timeout time.Duration) (xgb.Event, error) {
	var timer <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case e, ok := <-win.events:
		if !ok {
			return nil, xutil.ErrDisplayClosed
		}
		return e.ev, e.err
	case <-timer:
		return nil, nil
	}
}

// Keyboard mapping changed.
func (win *Window) ReloadKeyboard() {
	*win.Keyboard = *xinput.NewKeyboard(win.XU)
}

func (win *Window) SetWindowName(name string) error {
	return ewmh.WmNameSet(win.XU, win.Window, name)
}

// Bytes of data that fit in one change property request (no BIG-REQUESTS).
func (win *Window) MaxPropertySize() int {
	n := int(xproto.Setup(win.Conn).MaximumRequestLength) * 4
	return n - 24 // request header
}

// Last cursor set.
func (win *Window) Cursor() xcursors.Cursor {
	return win.cursor
}

//----------

func (win *Window) Root() xproto.Window {
	return win.XU.RootWin()
}

// Cached by xgbutil.
func (win *Window) InternAtom(name string) (xproto.Atom, error) {
	return xprop.Atm(win.XU, name)
}

func (win *Window) AtomName(atom xproto.Atom) (string, error) {
	return xprop.AtomName(win.XU, atom)
}

func (win *Window) GetProperty(w xproto.Window, prop xproto.Atom, del bool, offset, length uint32) (*xproto.GetPropertyReply, error) {
	cookie := xproto.GetProperty(win.Conn, del, w, prop, xproto.GetPropertyTypeAny, offset, length)
	r, err := cookie.Reply()
	return r, errors.Wrap(err, "get property")
}

func (win *Window) ChangeProperty(w xproto.Window, prop, typ xproto.Atom, format byte, data []byte) error {
	n := uint32(len(data)) / uint32(format/8)
	cookie := xproto.ChangePropertyChecked(
		win.Conn,
		xproto.PropModeReplace,
		w,
		prop,
		typ,
		format,
		n,
		data)
	return errors.Wrap(cookie.Check(), "change property")
}

func (win *Window) DeleteProperty(w xproto.Window, prop xproto.Atom) error {
	cookie := xproto.DeletePropertyChecked(win.Conn, w, prop)
	return errors.Wrap(cookie.Check(), "delete property")
}

func (win *Window) SetSelectionOwner(owner xproto.Window, selection xproto.Atom, t xproto.Timestamp) error {
	cookie := xproto.SetSelectionOwnerChecked(win.Conn, owner, selection, t)
	if err := cookie.Check(); err != nil {
		return errors.Wrap(err, "set selection owner")
	}
	return nil
}

func (win *Window) SelectionOwner(selection xproto.Atom) (xproto.Window, error) {
	r, err := xproto.GetSelectionOwner(win.Conn, selection).Reply()
	if err != nil {
		return 0, errors.Wrap(err, "get selection owner")
	}
	return r.Owner, nil
}

func (win *Window) ConvertSelection(requestor xproto.Window, selection, target, prop xproto.Atom, t xproto.Timestamp) error {
	cookie := xproto.ConvertSelectionChecked(win.Conn, requestor, selection, target, prop, t)
	return errors.Wrap(cookie.Check(), "convert selection")
}

func (win *Window) SendEvent(dest xproto.Window, ev xgb.Event) error {
	cookie := xproto.SendEventChecked(
		win.Conn,
		false,
		dest,
		xproto.EventMaskNoEvent,
		string(ev.Bytes()))
	return errors.Wrap(cookie.Check(), "send event")
}

func (win *Window) QueryPointer(w xproto.Window) (*xproto.QueryPointerReply, error) {
	r, err := xproto.QueryPointer(win.Conn, w).Reply()
	return r, errors.Wrap(err, "query pointer")
}

func (win *Window) TranslateCoordinates(src, dst xproto.Window, x, y int16) (*xproto.TranslateCoordinatesReply, error) {
	r, err := xproto.TranslateCoordinates(win.Conn, src, dst, x, y).Reply()
	return r, errors.Wrap(err, "translate coordinates")
}

//----------

func (win *Window) Grab(w xproto.Window) error {
	cur, err := win.Cursors.Cursor(xcursors.Default)
	if err != nil {
		return err
	}
	ok, err := mousebind.GrabPointer(win.XU, w, xproto.WindowNone, cur)
	if err != nil {
		return errors.Wrap(err, "grab pointer")
	}
	if !ok {
		return errors.New("grab pointer: not grabbed")
	}
	if err := keybind.GrabKeyboard(win.XU, w); err != nil {
		mousebind.UngrabPointer(win.XU)
		return errors.Wrap(err, "grab keyboard")
	}
	win.grabbed = true
	win.cursor = xcursors.Default
	return nil
}

func (win *Window) Ungrab() error {
	if !win.grabbed {
		return nil
	}
	win.grabbed = false
	keybind.UngrabKeyboard(win.XU)
	mousebind.UngrabPointer(win.XU)
	return nil
}

func (win *Window) SetCursor(c xcursors.Cursor) error {
	cur, err := win.Cursors.Cursor(c)
	if err != nil {
		return err
	}
	if win.grabbed {
		mask := uint16(0 |
			xproto.EventMaskButtonPress |
			xproto.EventMaskButtonRelease |
			xproto.EventMaskPointerMotion)
		cookie := xproto.ChangeActivePointerGrabChecked(win.Conn, cur, xproto.TimeCurrentTime, mask)
		if err := cookie.Check(); err != nil {
			return errors.Wrap(err, "set cursor")
		}
		win.cursor = c
		return nil
	}
	mask := uint32(xproto.CwCursor)
	cookie := xproto.ChangeWindowAttributesChecked(win.Conn, win.Window, mask, []uint32{uint32(cur)})
	if err := cookie.Check(); err != nil {
		return errors.Wrap(err, "set cursor")
	}
	win.cursor = c
	return nil
}
