// Drag and drop (XDND) between X11 applications.
package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"strings"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/davecgh/go-spew/spew"
	"github.com/jmigpin/xdnd/driver/xdriver"
	"github.com/jmigpin/xdnd/driver/xdriver/dragndrop"
	"github.com/jmigpin/xdnd/driver/xdriver/xinput"
	"github.com/jmigpin/xdnd/util/uiutil/event"
	"github.com/pkg/errors"
)

type Options struct {
	Send    string
	Files   bool
	Recv    bool
	Effects EffectsOpt
	Debug   bool
	Dnd     dragndrop.Options
}

// implements flag.Value interface
type EffectsOpt struct {
	e dragndrop.Effect
}

func (o *EffectsOpt) Set(s string) error {
	e, err := dragndrop.ParseEffect(s)
	if err != nil {
		return err
	}
	o.e = e
	return nil
}

func (o *EffectsOpt) String() string {
	return o.e.String()
}

//----------

func main() {
	log.SetFlags(log.Llongfile)

	opt := &Options{Dnd: dragndrop.DefaultOptions()}
	opt.Effects.e = dragndrop.EffectCopy | dragndrop.EffectMove
	flag.StringVar(&opt.Send, "send", "", "text to drag when the window is pressed")
	flag.BoolVar(&opt.Files, "files", false, "drag the file arguments when the window is pressed")
	flag.BoolVar(&opt.Recv, "recv", true, "accept drops and print the data")
	flag.Var(&opt.Effects, "effects", "allowed effects: copy,move,link")
	flag.DurationVar(&opt.Dnd.PollInterval, "poll", opt.Dnd.PollInterval, "drag polling interval")
	flag.DurationVar(&opt.Dnd.FinishTimeout, "finish", opt.Dnd.FinishTimeout, "max wait for the drop target to finish")
	flag.IntVar(&opt.Dnd.ChunkSize, "chunk", opt.Dnd.ChunkSize, "bytes per property read")
	flag.BoolVar(&opt.Debug, "debug", false, "dump the x events")
	flag.Parse()

	if err := run(opt, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opt *Options, args []string) error {
	payload, err := dragPayload(opt, args)
	if err != nil {
		return err
	}

	win, err := xdriver.NewWindow("xdnd", image.Rect(0, 0, 320, 240))
	if err != nil {
		return err
	}
	defer win.Close()

	dnd, err := dragndrop.NewDnd(win, win.Keyboard, dragndrop.NewDefaultTypeRegistry())
	if err != nil {
		return err
	}
	app := &App{opt: opt, win: win, dnd: dnd, payload: payload}
	dnd.Opt = opt.Dnd
	dnd.Opt.Forward = app.handleOther
	dnd.Opt.MaxPropertySize = win.MaxPropertySize()

	if opt.Recv {
		if err := dnd.SetAware(win.Window); err != nil {
			return err
		}
		dnd.SetWidget(win.Window, &printWidget{allowed: opt.Effects.e})
	}
	return app.loop()
}

func dragPayload(opt *Options, args []string) (dragndrop.DataObject, error) {
	switch {
	case opt.Send != "" && opt.Files:
		return nil, errors.New("-send and -files are exclusive")
	case opt.Send != "":
		data := dragndrop.NewData()
		data.Set(dragndrop.TypeUtf8String, opt.Send)
		data.Set(dragndrop.TypeString, opt.Send)
		return data, nil
	case opt.Files:
		if len(args) == 0 {
			return nil, errors.New("-files: missing file arguments")
		}
		data := dragndrop.NewData()
		data.Set(dragndrop.TypeURIList, args)
		data.Set(dragndrop.TypeUtf8String, strings.Join(args, "\n"))
		return data, nil
	}
	return nil, nil
}

//----------

type App struct {
	opt     *Options
	win     *xdriver.Window
	dnd     *dragndrop.Dnd
	payload dragndrop.DataObject
	closed  bool
}

func (app *App) loop() error {
	for !app.closed {
		ev, err := app.win.PollEvent(-1)
		if err != nil {
			if errors.Is(err, dragndrop.ErrDisplayClosed) {
				return nil
			}
			log.Print(err)
			continue
		}
		if app.opt.Debug {
			log.Print(spew.Sdump(ev))
		}
		if app.dnd.HandleEvent(ev) {
			continue
		}
		switch t := ev.(type) {
		case xproto.ButtonPressEvent:
			if app.payload != nil && xinput.Button(t.Detail) == event.ButtonLeft {
				app.startDrag()
			}
		default:
			app.handleOther(ev)
		}
	}
	return nil
}

func (app *App) startDrag() {
	eff, err := app.dnd.StartDrag(app.win.Window, app.payload, app.opt.Effects.e, nil)
	if err != nil {
		log.Print(err)
		return
	}
	fmt.Printf("drag: %v\n", eff)
}

// Also receives the events that arrive during a drag.
func (app *App) handleOther(ev xgb.Event) {
	switch t := ev.(type) {
	case xproto.ClientMessageEvent:
		if app.win.Wmp.IsDeleteWindow(&t) {
			app.closed = true
		}
	case xproto.MappingNotifyEvent:
		app.win.ReloadKeyboard()
	}
}

//----------

// Prints the dropped data.
type printWidget struct {
	allowed dragndrop.Effect
}

func (w *printWidget) AllowDrop() bool {
	return true
}
func (w *printWidget) OnDragEnter(ev *dragndrop.DragEvent) dragndrop.Effect {
	return w.effect(ev)
}
func (w *printWidget) OnDragOver(ev *dragndrop.DragEvent) dragndrop.Effect {
	return w.effect(ev)
}
func (w *printWidget) OnDragDrop(ev *dragndrop.DragEvent) dragndrop.Effect {
	fmt.Printf("drop at %v (%v)\n", ev.Point, ev.Action)
	for _, f := range ev.Data.Formats() {
		v, _ := ev.Data.Get(f)
		fmt.Printf("\t%v: %v\n", f, v)
	}
	return w.effect(ev)
}
func (w *printWidget) OnDragLeave() {}

func (w *printWidget) effect(ev *dragndrop.DragEvent) dragndrop.Effect {
	if w.allowed.Has(ev.Action) {
		return ev.Action
	}
	return (w.allowed & ev.Allowed).First()
}
