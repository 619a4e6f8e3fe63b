package interact

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Terminal prompts a human on an interactive console. Reads run on a
// separate goroutine so an unanswered prompt unblocks the moment the
// consultation is cancelled.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminal creates a prompter over stdin/stderr. Prompts go to
// stderr so piped stdout output stays clean.
func NewTerminal() *Terminal {
	return &Terminal{in: bufio.NewReader(os.Stdin), out: os.Stderr}
}

// NewTerminalWith creates a prompter over explicit streams. For tests.
func NewTerminalWith(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

// Confirm asks a yes/no question. Empty input selects def; unreadable
// input re-prompts once then falls back to def.
func (t *Terminal) Confirm(ctx context.Context, prompt string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	for attempt := 0; attempt < 2; attempt++ {
		fmt.Fprintf(t.out, "%s [%s]: ", prompt, hint)

		line, err := t.readLine(ctx)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(t.out, "Please answer y or n.")
	}
	return def, nil
}

// ChooseFailureAction asks how to proceed after total provider failure
// for an agent. The substitute option only appears when a candidate
// exists; the default is substitution when possible, skip otherwise.
func (t *Terminal) ChooseFailureAction(ctx context.Context, p *FailurePrompt) (FailureAction, error) {
	fmt.Fprintf(t.out, "\nAgent %s: provider %s failed (%s).\n", p.AgentName, p.Provider, p.Reason)

	options := "[s]kip / [a]bort"
	def := ActionSkip
	if p.Candidate != "" {
		fmt.Fprintf(t.out, "Backup provider available: %s\n", p.Candidate)
		options = "[u]se backup / [s]kip / [a]bort"
		def = ActionSubstitute
	}

	for attempt := 0; attempt < 2; attempt++ {
		fmt.Fprintf(t.out, "How should the consultation proceed? %s: ", options)

		line, err := t.readLine(ctx)
		if err != nil {
			return "", err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "":
			return def, nil
		case "u", "use", "substitute":
			if p.Candidate != "" {
				return ActionSubstitute, nil
			}
		case "s", "skip":
			return ActionSkip, nil
		case "a", "abort":
			return ActionAbort, nil
		}
		fmt.Fprintln(t.out, "Unrecognised answer.")
	}
	return def, nil
}

// readLine reads one line, honouring cancellation. The read goroutine
// may outlive a cancelled prompt; the next readLine drains its result
// through the buffered channel, so stdin is never read concurrently.
func (t *Terminal) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := t.in.ReadString('\n')
		ch <- result{line: line, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil && res.err != io.EOF {
			return "", res.err
		}
		return res.line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
