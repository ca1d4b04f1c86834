package approval

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Interactive reports whether f is attached to a terminal.
func Interactive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Prompt asks each question on out and reads a y/N answer from in. Only
// "y" and "yes" approve; anything else, including end of input, refuses.
type Prompt struct {
	out io.Writer
	in  *bufio.Reader

	once  sync.Once
	lines chan line
	mu    sync.Mutex
}

type line struct {
	text string
	err  error
}

// NewPrompt creates a Prompt.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{out: out, in: bufio.NewReader(in)}
}

// ApprovePlan implements Approver.
func (p *Prompt) ApprovePlan(ctx context.Context, summary string) (bool, error) {
	return p.ask(ctx, summary, "Execute this plan?")
}

// ApproveWave implements Approver.
func (p *Prompt) ApproveWave(ctx context.Context, waveIndex int, summary string) (bool, error) {
	return p.ask(ctx, summary, fmt.Sprintf("Run destructive wave %d?", waveIndex))
}

// ApproveRollback implements Approver.
func (p *Prompt) ApproveRollback(ctx context.Context, snapshotID, failure string) (bool, error) {
	return p.ask(ctx, failure, fmt.Sprintf("Restore snapshot %s?", snapshotID))
}

func (p *Prompt) ask(ctx context.Context, details, question string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if details != "" {
		fmt.Fprintln(p.out, strings.TrimRight(details, "\n"))
	}
	fmt.Fprintf(p.out, "%s [y/N] ", question)

	p.once.Do(p.startReader)
	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	case l, ok := <-p.lines:
		if !ok {
			return false, nil
		}
		if l.err != nil && l.text == "" {
			if errors.Is(l.err, io.EOF) {
				return false, nil
			}
			return false, fmt.Errorf("failed to read input: %w", l.err)
		}
		answer := strings.TrimSpace(strings.ToLower(l.text))
		return answer == "y" || answer == "yes", nil
	}
}

// startReader reads lines in the background so a blocked read never
// outlives a cancelled question.
func (p *Prompt) startReader() {
	p.lines = make(chan line)
	go func() {
		defer close(p.lines)
		for {
			text, err := p.in.ReadString('\n')
			p.lines <- line{text: text, err: err}
			if err != nil {
				return
			}
		}
	}()
}
