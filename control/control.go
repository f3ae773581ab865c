// Package control provides the stop and advance signals polled by the
// runner: OS signals, operator input, and combinations of both.
package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	cameracanny "github.com/e7canasta/camera-canny"
)

// Cancel is a latched stop flag. The zero value is ready to use.
type Cancel struct {
	raised atomic.Bool
	reason atomic.Value // string

	once sync.Once
	done chan struct{}
}

// Raise sets the flag. Later calls keep the first reason.
func (c *Cancel) Raise(reason string) {
	if c.raised.CompareAndSwap(false, true) {
		c.reason.Store(reason)
		close(c.doneChan())
		slog.Info("control: stop requested", "reason", reason)
	}
}

// Done is closed once Raise has been called. Use it to cancel a context so
// a blocked capture call returns too.
func (c *Cancel) Done() <-chan struct{} {
	return c.doneChan()
}

func (c *Cancel) doneChan() chan struct{} {
	c.once.Do(func() { c.done = make(chan struct{}) })
	return c.done
}

// StopRequested reports whether Raise has been called.
func (c *Cancel) StopRequested() bool { return c.raised.Load() }

// Reason returns the first reason passed to Raise, or "".
func (c *Cancel) Reason() string {
	if r, ok := c.reason.Load().(string); ok {
		return r
	}
	return ""
}

// NotifySignals raises c on SIGINT or SIGTERM until the returned stop
// function is called. A second signal is not intercepted, so the default
// handler terminates the process.
func NotifySignals(c *Cancel) (stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case sig := <-sigChan:
			c.Raise(sig.String())
			signal.Stop(sigChan)
		case <-done:
		}
	}()

	return func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(done)
		})
	}
}

// anySignal stops when any member does
type anySignal []cameracanny.StopSignal

// Any combines stop signals. Every member is polled on each call, so key
// pollers keep draining their input.
func Any(signals ...cameracanny.StopSignal) cameracanny.StopSignal {
	filtered := make(anySignal, 0, len(signals))
	for _, s := range signals {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

func (a anySignal) StopRequested() bool {
	stop := false
	for _, s := range a {
		if s.StopRequested() {
			stop = true
		}
	}
	return stop
}

// LineAdvance gates step mode on lines read from an input stream.
//
// An empty line (Enter) advances. "q" or "quit", end of input, or a read
// error ends the run.
type LineAdvance struct {
	prompt io.Writer
	lines  chan lineResult
	once   sync.Once
	in     *bufio.Scanner
}

type lineResult struct {
	text string
	ok   bool
}

// NewLineAdvance reads from in. A non-nil prompt receives a short hint
// before every wait.
func NewLineAdvance(in io.Reader, prompt io.Writer) *LineAdvance {
	return &LineAdvance{
		prompt: prompt,
		lines:  make(chan lineResult),
		in:     bufio.NewScanner(in),
	}
}

// WaitAdvance blocks until a line arrives or ctx is done.
func (l *LineAdvance) WaitAdvance(ctx context.Context) bool {
	l.once.Do(func() { go l.readLines() })

	if l.prompt != nil {
		fmt.Fprint(l.prompt, "[STEP] Enter = next burst, q = quit: ")
	}

	select {
	case <-ctx.Done():
		return false
	case res := <-l.lines:
		if !res.ok {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(res.text)) {
		case "q", "quit":
			return false
		default:
			return true
		}
	}
}

// readLines feeds l.lines; the reader goroutine outlives WaitAdvance
// because a blocking read cannot be interrupted.
func (l *LineAdvance) readLines() {
	for l.in.Scan() {
		l.lines <- lineResult{text: l.in.Text(), ok: true}
	}
	if err := l.in.Err(); err != nil {
		slog.Warn("control: reading step input failed", "error", err)
	}
	for {
		l.lines <- lineResult{ok: false}
	}
}
