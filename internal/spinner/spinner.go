// Package spinner animates a status line on a terminal while a slow storage
// operation runs.
package spinner

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Interval between frames.
const Interval = 80 * time.Millisecond

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type fder interface {
	Fd() uintptr
}

// Start animates message on w until the returned func is called, which
// clears the line. Nothing is drawn when w is not a terminal.
func Start(w io.Writer, message string) (stop func()) {
	f, ok := w.(fder)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return func() {}
	}
	return start(w, message, Interval)
}

func start(w io.Writer, message string, interval time.Duration) func() {
	done := make(chan struct{})
	cleared := make(chan struct{})
	width := runewidth.StringWidth(message) + 2

	go func() {
		defer close(cleared)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			fmt.Fprintf(w, "\r%s %s", frames[i%len(frames)], message) //nolint:errcheck
			select {
			case <-done:
				fmt.Fprintf(w, "\r%s\r", strings.Repeat(" ", width)) //nolint:errcheck
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-cleared
	}
}
