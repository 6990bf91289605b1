package dragndrop

import (
	"image"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/jmigpin/xdnd/driver/xdriver/xinput"
	"github.com/jmigpin/xdnd/util/uiutil/event"
)

// Modal loop that runs while a drag is active. Pointer and key events are consumed; everything else goes to the engine or to Options.Forward.
type pump struct {
	dnd *Dnd
}

func (p *pump) run(sess *DragSession) (Effect, error) {
	src := p.dnd.source
	next := time.Now() // first tick right away
	for sess.State != DragNone {
		now := time.Now()
		var wait time.Duration
		if sess.dropSent {
			// escalated: only waiting for the finished message
			if !now.Before(sess.deadline) {
				p.dnd.logf("dnd: finished timeout")
				src.end(sess, EffectNone)
				break
			}
			wait = sess.deadline.Sub(now)
		} else {
			if !now.Before(next) {
				next = now.Add(p.dnd.Opt.PollInterval)
				if err := p.check(src.tick(sess)); err != nil {
					return EffectNone, err
				}
				continue
			}
			wait = next.Sub(now)
		}

		ev, err := p.dnd.disp.PollEvent(wait)
		if err != nil {
			if err := p.check(err); err != nil {
				return EffectNone, err
			}
			continue
		}
		if ev == nil {
			continue // timeout
		}
		if err := p.check(p.dispatch(sess, ev)); err != nil {
			return EffectNone, err
		}
	}
	return sess.result, nil
}

func (p *pump) dispatch(sess *DragSession, ev xgb.Event) error {
	src := p.dnd.source
	switch t := ev.(type) {
	case xproto.MotionNotifyEvent:
		// collapsed into the next tick
		sess.pos = image.Point{int(t.RootX), int(t.RootY)}
		sess.mods = xinput.Modifiers(t.State)
	case xproto.ButtonPressEvent:
		sess.Buttons |= event.MouseButtons(xinput.Button(t.Detail))
	case xproto.ButtonReleaseEvent:
		sess.pos = image.Point{int(t.RootX), int(t.RootY)}
		sess.mods = xinput.Modifiers(t.State)
		b := xinput.Button(t.Detail)
		if sess.Buttons == 0 || sess.Buttons.Has(b) {
			return src.release(sess)
		}
	case xproto.KeyPressEvent:
		sess.mods = xinput.Modifiers(t.State)
		if p.dnd.kb != nil && p.dnd.kb.IsEscape(t.Detail) {
			sess.escape = true
			return src.tick(sess)
		}
	case xproto.KeyReleaseEvent:
		sess.mods = xinput.Modifiers(t.State)
	default:
		if !p.dnd.HandleEvent(ev) && p.dnd.Opt.Forward != nil {
			p.dnd.Opt.Forward(ev)
		}
	}
	return nil
}

// Logs recoverable errors. Returns the error if the drag must be aborted.
func (p *pump) check(err error) error {
	if err == nil {
		return nil
	}
	if fatal(err) {
		return err
	}
	p.dnd.logf("dnd: %v", err)
	return nil
}
