package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const spinnerInterval = 80 * time.Millisecond

var spinnerFrames = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

// Spinner animates a one-line status while an export or checkout runs.
// Cancelling the parent context stops it like Stop does.
type Spinner struct {
	message string
	out     io.Writer
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func newSpinnerWithContext(ctx context.Context, message string) *Spinner {
	return newSpinnerTo(ctx, os.Stderr, message)
}

func newSpinnerTo(ctx context.Context, w io.Writer, message string) *Spinner {
	ctx, cancel := context.WithCancel(ctx)
	return &Spinner{message: message, out: w, ctx: ctx, cancel: cancel}
}

func (s *Spinner) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Spinner) run() {
	defer s.wg.Done()
	tick := time.NewTicker(spinnerInterval)
	defer tick.Stop()

	label := StyleDim.Render(s.message)
	for frame := 0; ; frame++ {
		select {
		case <-s.ctx.Done():
			return
		case <-tick.C:
			r := spinnerFrames[frame%len(spinnerFrames)]
			fmt.Fprintf(s.out, "\r%s %s", styleIconSpinner.Render(string(r)), label)
		}
	}
}

// Stop halts the animation and blanks the line. Calling it twice, or
// before Start, is fine.
func (s *Spinner) Stop() {
	s.cancel()
	s.wg.Wait()
	fmt.Fprintf(s.out, "\r%s\r", strings.Repeat(" ", len(s.message)+4))
}

func (s *Spinner) StopWithSuccess(message string) {
	s.Stop()
	printSuccess("%s", message)
}

func (s *Spinner) StopWithError(message string) {
	s.Stop()
	printError("%s", message)
}

// Cancelled reports whether the spinner was stopped or its parent cancelled.
func (s *Spinner) Cancelled() bool { return s.ctx.Err() != nil }
