package dragndrop

import (
	"fmt"
	"image"

	"github.com/BurntSushi/xgb/xproto"
)

// protocol: https://www.freedesktop.org/wiki/Specifications/XDND/
// Each client message kind has its own type; data layouts follow the protocol (format 32, 5 longs).

type Message interface {
	Data32() []uint32
}

//----------

type EnterMsg struct {
	Source    xproto.Window
	Version   int
	MoreTypes bool          // more then 3 types, see XdndTypeList
	Types     []xproto.Atom // up to 3
}

func parseEnterMsg(buf []uint32) *EnterMsg {
	m := &EnterMsg{
		Source:    xproto.Window(buf[0]),
		Version:   int(buf[1] >> 24),
		MoreTypes: buf[1]&1 == 1,
	}
	for _, t := range buf[2:5] {
		if t != xproto.AtomNone {
			m.Types = append(m.Types, xproto.Atom(t))
		}
	}
	return m
}

func (m *EnterMsg) Data32() []uint32 {
	flags := uint32(m.Version) << 24
	if m.MoreTypes {
		flags |= 1
	}
	u := []uint32{uint32(m.Source), flags, 0, 0, 0}
	for i, t := range m.Types {
		if i >= 3 {
			break
		}
		u[2+i] = uint32(t)
	}
	return u
}

//----------

type PositionMsg struct {
	Source xproto.Window
	Point  image.Point // root coordinates
	Time   xproto.Timestamp
	Action xproto.Atom
}

func parsePositionMsg(buf []uint32) *PositionMsg {
	return &PositionMsg{
		Source: xproto.Window(buf[0]),
		//buf[1] // reserved
		Point:  unpackPoint(buf[2]),
		Time:   xproto.Timestamp(buf[3]),
		Action: xproto.Atom(buf[4]),
	}
}

func (m *PositionMsg) Data32() []uint32 {
	return []uint32{
		uint32(m.Source),
		0, // reserved
		packPoint(m.Point),
		uint32(m.Time),
		uint32(m.Action),
	}
}

//----------

type StatusMsg struct {
	Target        xproto.Window
	Accept        bool
	WantPositions bool            // ask to keep sending positions inside rect
	Rect          image.Rectangle // empty rect: send positions always
	Action        xproto.Atom     // accepted action
}

const (
	statusAcceptFlag        = 1 << 0
	statusSendPositionsFlag = 1 << 1
)

func parseStatusMsg(buf []uint32) *StatusMsg {
	p := unpackPoint(buf[2])
	s := unpackPoint(buf[3])
	return &StatusMsg{
		Target:        xproto.Window(buf[0]),
		Accept:        buf[1]&statusAcceptFlag != 0,
		WantPositions: buf[1]&statusSendPositionsFlag != 0,
		Rect:          image.Rectangle{p, p.Add(s)},
		Action:        xproto.Atom(buf[4]),
	}
}

func (m *StatusMsg) Data32() []uint32 {
	flags := uint32(0)
	if m.Accept {
		flags |= statusAcceptFlag
	}
	if m.WantPositions {
		flags |= statusSendPositionsFlag
	}
	return []uint32{
		uint32(m.Target),
		flags,
		packPoint(m.Rect.Min),
		packPoint(m.Rect.Size()),
		uint32(m.Action),
	}
}

//----------

type DropMsg struct {
	Source xproto.Window
	Time   xproto.Timestamp
}

func parseDropMsg(buf []uint32) *DropMsg {
	return &DropMsg{
		Source: xproto.Window(buf[0]),
		// buf[1] // reserved flags
		Time: xproto.Timestamp(buf[2]),
	}
}

func (m *DropMsg) Data32() []uint32 {
	return []uint32{uint32(m.Source), 0, uint32(m.Time), 0, 0}
}

//----------

type LeaveMsg struct {
	Source xproto.Window
}

func (m *LeaveMsg) Data32() []uint32 {
	return []uint32{uint32(m.Source), 0, 0, 0, 0}
}

//----------

type FinishedMsg struct {
	Target   xproto.Window
	Accepted bool        // version>=5
	Action   xproto.Atom // version>=5
}

func parseFinishedMsg(buf []uint32) *FinishedMsg {
	return &FinishedMsg{
		Target:   xproto.Window(buf[0]),
		Accepted: buf[1]&1 == 1,
		Action:   xproto.Atom(buf[2]),
	}
}

func (m *FinishedMsg) Data32() []uint32 {
	acc := uint32(0)
	action := m.Action
	if m.Accepted {
		acc = 1 // first bit of uint32
	} else {
		action = xproto.AtomNone
	}
	return []uint32{uint32(m.Target), acc, uint32(action), 0, 0}
}

//----------

func (a *dndAtoms) messageType(m Message) xproto.Atom {
	switch m.(type) {
	case *EnterMsg:
		return a.XdndEnter
	case *PositionMsg:
		return a.XdndPosition
	case *StatusMsg:
		return a.XdndStatus
	case *DropMsg:
		return a.XdndDrop
	case *LeaveMsg:
		return a.XdndLeave
	case *FinishedMsg:
		return a.XdndFinished
	}
	panic(fmt.Sprintf("unhandled message type: %T", m))
}

// Returns ok=false if the client message is not a dnd message.
func (a *dndAtoms) parseMessage(ev *xproto.ClientMessageEvent) (_ Message, ok bool, _ error) {
	switch ev.Type {
	case a.XdndEnter, a.XdndPosition, a.XdndStatus, a.XdndDrop, a.XdndLeave, a.XdndFinished:
	default:
		return nil, false, nil
	}
	if ev.Format != 32 {
		return nil, true, fmt.Errorf("dnd event: data format is not 32: %d", ev.Format)
	}
	buf := ev.Data.Data32
	if len(buf) < 5 {
		return nil, true, fmt.Errorf("dnd event: short data: %d", len(buf))
	}
	switch ev.Type {
	case a.XdndEnter:
		return parseEnterMsg(buf), true, nil
	case a.XdndPosition:
		return parsePositionMsg(buf), true, nil
	case a.XdndStatus:
		return parseStatusMsg(buf), true, nil
	case a.XdndDrop:
		return parseDropMsg(buf), true, nil
	case a.XdndLeave:
		return &LeaveMsg{Source: xproto.Window(buf[0])}, true, nil
	default: // a.XdndFinished
		return parseFinishedMsg(buf), true, nil
	}
}

func (a *dndAtoms) clientMessage(win xproto.Window, m Message) xproto.ClientMessageEvent {
	return xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   a.messageType(m),
		Data:   xproto.ClientMessageDataUnionData32New(m.Data32()),
	}
}

//----------

func packPoint(p image.Point) uint32 {
	return uint32(uint16(int16(p.X)))<<16 | uint32(uint16(int16(p.Y)))
}

func unpackPoint(v uint32) image.Point {
	return image.Point{int(int16(v >> 16)), int(int16(v & 0xffff))}
}
