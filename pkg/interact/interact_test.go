package interact

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureAction_IsValid(t *testing.T) {
	assert.True(t, ActionSubstitute.IsValid())
	assert.True(t, ActionSkip.IsValid())
	assert.True(t, ActionAbort.IsValid())
	assert.False(t, FailureAction("retry").IsValid())
	assert.False(t, FailureAction("").IsValid())
}

func TestPolicy_ConfirmUsesCallerDefault(t *testing.T) {
	p := NewPolicy()

	ok, err := p.Confirm(context.Background(), "proceed?", true)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Confirm(context.Background(), "proceed?", false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPolicy_ConfirmOverride(t *testing.T) {
	always := true
	p := &Policy{ConfirmDefault: &always}

	ok, err := p.Confirm(context.Background(), "proceed?", false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPolicy_ChooseFailureAction(t *testing.T) {
	p := NewPolicy()
	action, err := p.ChooseFailureAction(context.Background(), &FailurePrompt{AgentID: "architect"})
	require.NoError(t, err)
	assert.Equal(t, ActionSubstitute, action)

	p = &Policy{FailureDefault: ActionAbort}
	action, err = p.ChooseFailureAction(context.Background(), &FailurePrompt{AgentID: "architect"})
	require.NoError(t, err)
	assert.Equal(t, ActionAbort, action)

	p = &Policy{FailureDefault: FailureAction("bogus")}
	action, err = p.ChooseFailureAction(context.Background(), &FailurePrompt{AgentID: "architect"})
	require.NoError(t, err)
	assert.Equal(t, ActionSubstitute, action)
}

func TestTerminal_ConfirmParsing(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		def      bool
		expected bool
	}{
		{name: "yes", input: "y\n", def: false, expected: true},
		{name: "yes word", input: "yes\n", def: false, expected: true},
		{name: "no", input: "n\n", def: true, expected: false},
		{name: "no word", input: "no\n", def: true, expected: false},
		{name: "empty takes default true", input: "\n", def: true, expected: true},
		{name: "empty takes default false", input: "\n", def: false, expected: false},
		{name: "uppercase", input: "Y\n", def: false, expected: true},
		{name: "whitespace trimmed", input: "  yes  \n", def: false, expected: true},
		{name: "garbage then yes", input: "what\ny\n", def: false, expected: true},
		{name: "garbage twice falls back to default", input: "what\nwhat\n", def: true, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			term := NewTerminalWith(strings.NewReader(tt.input), &out)

			got, err := term.Confirm(context.Background(), "proceed?", tt.def)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestTerminal_ConfirmEOFTakesDefault(t *testing.T) {
	var out strings.Builder
	term := NewTerminalWith(strings.NewReader(""), &out)

	got, err := term.Confirm(context.Background(), "proceed?", true)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestTerminal_ChooseFailureActionParsing(t *testing.T) {
	prompt := &FailurePrompt{
		AgentID:   "architect",
		AgentName: "Architect",
		Provider:  "openai",
		Candidate: "anthropic",
		Reason:    "timeout",
	}

	tests := []struct {
		name     string
		input    string
		expected FailureAction
	}{
		{name: "use backup", input: "u\n", expected: ActionSubstitute},
		{name: "substitute word", input: "substitute\n", expected: ActionSubstitute},
		{name: "skip", input: "s\n", expected: ActionSkip},
		{name: "abort", input: "a\n", expected: ActionAbort},
		{name: "empty defaults to substitute", input: "\n", expected: ActionSubstitute},
		{name: "garbage then skip", input: "x\ns\n", expected: ActionSkip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			term := NewTerminalWith(strings.NewReader(tt.input), &out)

			got, err := term.ChooseFailureAction(context.Background(), prompt)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestTerminal_ChooseFailureActionNoCandidate(t *testing.T) {
	prompt := &FailurePrompt{
		AgentID:  "architect",
		Provider: "openai",
		Reason:   "timeout",
	}

	// Without a backup candidate, "u" is not accepted and the default
	// falls back to skip.
	var out strings.Builder
	term := NewTerminalWith(strings.NewReader("\n"), &out)
	got, err := term.ChooseFailureAction(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, got)

	assert.NotContains(t, out.String(), "use backup")
}

func TestTerminal_PromptUnblocksOnCancel(t *testing.T) {
	// A reader that never produces input simulates a human who walked
	// away from the console.
	blocked := make(chan struct{})
	term := NewTerminalWith(blockingReader{unblock: blocked}, &strings.Builder{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := term.Confirm(ctx, "proceed?", false)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("prompt did not unblock after cancellation")
	}
	close(blocked)
}

type blockingReader struct {
	unblock chan struct{}
}

func (r blockingReader) Read(p []byte) (int, error) {
	<-r.unblock
	return 0, nil
}
