package dragndrop

import (
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/jmigpin/xdnd/driver/xdriver/xcursors"
	"github.com/jmigpin/xdnd/driver/xdriver/xutil"
)

// X requests used by the drag and drop engine. Implemented by the x driver window and by the fake server used in tests.
type Display interface {
	Root() xproto.Window

	InternAtom(name string) (xproto.Atom, error)
	AtomName(atom xproto.Atom) (string, error)

	// offset/length are in 32 bit units (same as the x request)
	GetProperty(win xproto.Window, prop xproto.Atom, delete bool, offset, length uint32) (*xproto.GetPropertyReply, error)
	ChangeProperty(win xproto.Window, prop, typ xproto.Atom, format byte, data []byte) error
	DeleteProperty(win xproto.Window, prop xproto.Atom) error

	SetSelectionOwner(owner xproto.Window, selection xproto.Atom, t xproto.Timestamp) error
	SelectionOwner(selection xproto.Atom) (xproto.Window, error)
	ConvertSelection(requestor xproto.Window, selection, target, prop xproto.Atom, t xproto.Timestamp) error

	// ev is an xproto event value (ex: xproto.ClientMessageEvent)
	SendEvent(dest xproto.Window, ev xgb.Event) error

	QueryPointer(win xproto.Window) (*xproto.QueryPointerReply, error)
	TranslateCoordinates(src, dst xproto.Window, x, y int16) (*xproto.TranslateCoordinatesReply, error)

	// pointer and keyboard capture
	Grab(win xproto.Window) error
	Ungrab() error
	SetCursor(c Cursor) error

	// Waits for the next event. Returns a nil event if the timeout expires. A negative timeout waits forever.
	PollEvent(timeout time.Duration) (xgb.Event, error)
}

// Keyboard layout knowledge needed during a drag.
type Keyboard interface {
	IsEscape(kc xproto.Keycode) bool
}

// Returned by Display.PollEvent when the connection is gone.
var ErrDisplayClosed = xutil.ErrDisplayClosed

//----------

type Cursor = xcursors.Cursor

const (
	DefaultCursor = xcursors.Default
	NoDropCursor  = xcursors.NoDrop
	CopyCursor    = xcursors.Copy
	MoveCursor    = xcursors.Move
	LinkCursor    = xcursors.Link
)
