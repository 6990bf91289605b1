// In-memory x server for tests. Keeps a window tree, properties, atoms, selection owners, the pointer and the grab, and routes events to the clients owning the windows.
package xfake

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

type Server struct {
	mu sync.Mutex

	root    *window
	wins    map[xproto.Window]*window
	nextWin xproto.Window

	atoms    map[string]xproto.Atom
	names    map[xproto.Atom]string
	nextAtom xproto.Atom

	owners map[xproto.Atom]xproto.Window

	pointer image.Point
	state   uint16 // keys and buttons mask
	grab    *Client

	sent []Message // client messages

	refuseSelection bool
}

func NewServer(w, h int) *Server {
	srv := &Server{
		wins:     map[xproto.Window]*window{},
		nextWin:  0x200,
		atoms:    map[string]xproto.Atom{},
		names:    map[xproto.Atom]string{},
		nextAtom: 0x100,
		owners:   map[xproto.Atom]xproto.Window{},
	}
	srv.root = &window{id: 0x100, rect: image.Rect(0, 0, w, h), props: map[xproto.Atom]*property{}}
	srv.wins[srv.root.id] = srv.root

	predefined := map[string]xproto.Atom{
		"ATOM":     xproto.AtomAtom,
		"CARDINAL": xproto.AtomCardinal,
		"STRING":   xproto.AtomString,
		"WINDOW":   xproto.AtomWindow,
	}
	for name, a := range predefined {
		srv.atoms[name] = a
		srv.names[a] = name
	}
	return srv
}

func (srv *Server) NewClient() *Client {
	return &Client{srv: srv, notify: make(chan struct{}, 1)}
}

func (srv *Server) Root() xproto.Window {
	return srv.root.id
}

//----------

// Selection owner changes are ignored while refusing.
func (srv *Server) RefuseSelection(v bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.refuseSelection = v
}

func (srv *Server) Grabbed() *Client {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.grab
}

func (srv *Server) Pointer() image.Point {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.pointer
}

func (srv *Server) MovePointer(x, y int) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.pointer = image.Point{x, y}
	c, win, p := srv.pointerTarget()
	if c == nil {
		return
	}
	c.push(xproto.MotionNotifyEvent{
		Root:       srv.root.id,
		Event:      win,
		RootX:      int16(srv.pointer.X),
		RootY:      int16(srv.pointer.Y),
		EventX:     int16(p.X),
		EventY:     int16(p.Y),
		State:      srv.state,
		SameScreen: true,
	})
}

func (srv *Server) PressButton(b xproto.Button) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	state := srv.state
	srv.state |= buttonMask(b)
	if c, win, p := srv.pointerTarget(); c != nil {
		c.push(xproto.ButtonPressEvent(srv.buttonEvent(b, state, win, p)))
	}
}

func (srv *Server) ReleaseButton(b xproto.Button) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	state := srv.state
	srv.state &^= buttonMask(b)
	if c, win, p := srv.pointerTarget(); c != nil {
		c.push(xproto.ButtonReleaseEvent(srv.buttonEvent(b, state, win, p)))
	}
}

// Sets modifiers of the key/button mask (ex: xproto.KeyButMaskControl).
func (srv *Server) SetModifiers(mask uint16) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	buttons := srv.state & 0xff00
	srv.state = buttons | mask&0xff
}

// Key press and release. Keyboard events only go to the grabbing client.
func (srv *Server) PressKey(kc xproto.Keycode) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.grab == nil {
		return
	}
	_, win, p := srv.pointerTarget()
	ev := xproto.KeyPressEvent{
		Detail:     kc,
		Root:       srv.root.id,
		Event:      win,
		RootX:      int16(srv.pointer.X),
		RootY:      int16(srv.pointer.Y),
		EventX:     int16(p.X),
		EventY:     int16(p.Y),
		State:      srv.state,
		SameScreen: true,
	}
	srv.grab.push(ev)
	srv.grab.push(xproto.KeyReleaseEvent(ev))
}

// Escape keycode on common layouts.
const EscapeKeycode = xproto.Keycode(9)

//----------

type Message struct {
	Dest   xproto.Window
	Window xproto.Window
	Type   string
	Data   []uint32
}

func (m Message) String() string {
	return fmt.Sprintf("%v(win=%v, dest=%v, data=%v)", m.Type, m.Window, m.Dest, m.Data)
}

// Client messages sent so far, optionally filtered by type names.
func (srv *Server) Messages(types ...string) []Message {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	u := []Message{}
	for _, m := range srv.sent {
		if len(types) == 0 || hasString(types, m.Type) {
			u = append(u, m)
		}
	}
	return u
}

// Waits until n client messages of the type were sent.
func (srv *Server) WaitMessages(typ string, n int, timeout time.Duration) bool {
	return Wait(timeout, func() bool {
		return len(srv.Messages(typ)) >= n
	})
}

// Polls cond until it returns true or the timeout expires.
func Wait(timeout time.Duration, cond func() bool) bool {
	end := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(end) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

//----------

type window struct {
	id       xproto.Window
	parent   *window
	children []*window // stacking order, top is last
	rect     image.Rectangle
	props    map[xproto.Atom]*property
	owner    *Client

	propNotify bool // property change events selected by the owner
}

func (w *window) abs() image.Point {
	p := w.rect.Min
	for u := w.parent; u != nil; u = u.parent {
		p = p.Add(u.rect.Min)
	}
	return p
}

// Topmost child containing the point (window coordinates).
func (w *window) childAt(p image.Point) *window {
	for i := len(w.children) - 1; i >= 0; i-- {
		c := w.children[i]
		if p.In(c.rect) {
			return c
		}
	}
	return nil
}

type property struct {
	typ    xproto.Atom
	format byte
	data   []byte
}

//----------

// Needs the lock.
func (srv *Server) window(id xproto.Window) (*window, error) {
	w, ok := srv.wins[id]
	if !ok {
		return nil, &Error{Name: "BadWindow", Value: uint32(id)}
	}
	return w, nil
}

// Client and window receiving pointer events: the grab, or the owner of the deepest window under the pointer. Needs the lock.
func (srv *Server) pointerTarget() (*Client, xproto.Window, image.Point) {
	w := srv.root
	p := srv.pointer
	for {
		c := w.childAt(p.Sub(w.abs()))
		if c == nil {
			break
		}
		w = c
	}
	if srv.grab != nil {
		gw, _ := srv.window(srv.grab.grabWin)
		if gw != nil {
			return srv.grab, gw.id, p.Sub(gw.abs())
		}
	}
	return w.owner, w.id, p.Sub(w.abs())
}

func (srv *Server) buttonEvent(b xproto.Button, state uint16, win xproto.Window, p image.Point) xproto.ButtonPressEvent {
	return xproto.ButtonPressEvent{
		Detail:     b,
		Root:       srv.root.id,
		Event:      win,
		RootX:      int16(srv.pointer.X),
		RootY:      int16(srv.pointer.Y),
		EventX:     int16(p.X),
		EventY:     int16(p.Y),
		State:      state,
		SameScreen: true,
	}
}

// Needs the lock.
func (srv *Server) propertyChanged(w *window, prop xproto.Atom, state byte) {
	if !w.propNotify || w.owner == nil {
		return
	}
	w.owner.push(xproto.PropertyNotifyEvent{
		Window: w.id,
		Atom:   prop,
		State:  state,
	})
}

// Needs the lock.
func (srv *Server) deliver(win xproto.Window, ev xgb.Event) error {
	w, err := srv.window(win)
	if err != nil {
		return err
	}
	if w.owner != nil {
		w.owner.push(ev)
	}
	return nil
}

//----------

type Error struct {
	Name  string
	Value uint32
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v {BadValue: %v}", e.Name, e.Value)
}

func buttonMask(b xproto.Button) uint16 {
	if b < 1 || b > 5 {
		return 0
	}
	return xproto.KeyButMaskButton1 << (b - 1)
}

func hasString(u []string, s string) bool {
	for _, s2 := range u {
		if s2 == s {
			return true
		}
	}
	return false
}
