// Package monitor renders a live terminal view of the audio client table.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/Johncheung512/xenia/xenia/apu"
)

const defaultRefresh = 250 * time.Millisecond

// Monitor polls an AudioSystem snapshot and draws it with tcell until the
// user presses q/ESC or Stop is called.
type Monitor struct {
	system  *apu.AudioSystem
	refresh time.Duration

	quit     chan struct{}
	quitOnce sync.Once
}

func New(system *apu.AudioSystem, refresh time.Duration) *Monitor {
	if refresh <= 0 {
		refresh = defaultRefresh
	}
	return &Monitor{
		system:  system,
		refresh: refresh,
		quit:    make(chan struct{}),
	}
}

// Stop makes a blocked Run return. Safe to call more than once.
func (m *Monitor) Stop() {
	m.quitOnce.Do(func() { close(m.quit) })
}

// Run takes over the terminal and blocks until the user quits or Stop is
// called.
func (m *Monitor) Run() error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to initialize terminal: %v", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("failed to initialize terminal: %v", err)
	}
	defer screen.Fini()

	events := make(chan tcell.Event, 8)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	ticker := time.NewTicker(m.refresh)
	defer ticker.Stop()

	for {
		m.draw(screen)

		select {
		case <-m.quit:
			return nil
		case <-ticker.C:
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Rune() == 'q' {
					return nil
				}
			case *tcell.EventResize:
				screen.Sync()
			}
		}
	}
}

func (m *Monitor) draw(screen tcell.Screen) {
	screen.Clear()

	header := tcell.StyleDefault.Bold(true)
	drawText(screen, 0, 0, header, "Audio clients (q to quit)")
	drawText(screen, 0, 1, header, "slot  active  callback    pumped  pending")

	for _, st := range m.system.Snapshot() {
		style := tcell.StyleDefault.Foreground(tcell.ColorGray)
		if st.Active {
			style = tcell.StyleDefault.Foreground(tcell.ColorGreen)
		}
		line := fmt.Sprintf("%4d  %6v  %#010x  %6d  %7d",
			st.Index, st.Active, st.Callback, st.Pumped, st.Pending)
		drawText(screen, 0, 2+st.Index, style, line)
	}

	screen.Show()
}

func drawText(screen tcell.Screen, x, y int, style tcell.Style, text string) {
	for i, r := range text {
		screen.SetContent(x+i, y, r, nil, style)
	}
}
