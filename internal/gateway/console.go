package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"orbit/internal/observability"
	"orbit/internal/store"
)

// ConsoleGateway is the interactive terminal REPL. One line in, one
// assistant answer out; Ctrl-C aborts only the in-flight turn.
type ConsoleGateway struct {
	assistant  Assistant
	in         io.Reader
	out        io.Writer
	serverName string
	toolCount  int
	sessionID  string
	transcript *store.TranscriptStore

	thinkMu   sync.Mutex
	thinking  bool
	thinkStop chan struct{}
	thinkDone chan struct{}
}

type ConsoleOptions struct {
	Assistant  Assistant
	In         io.Reader
	Out        io.Writer
	ServerName string
	ToolCount  int
	SessionID  string
	Transcript *store.TranscriptStore
}

func NewConsoleGateway(opts ConsoleOptions) *ConsoleGateway {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &ConsoleGateway{
		assistant:  opts.Assistant,
		in:         opts.In,
		out:        opts.Out,
		serverName: opts.ServerName,
		toolCount:  opts.ToolCount,
		sessionID:  opts.SessionID,
		transcript: opts.Transcript,
	}
}

// Start runs the REPL. Empty input, EOF and exit/quit all end the session
// cleanly; a SIGINT during a turn cancels that turn only.
func (c *ConsoleGateway) Start(ctx context.Context) error {
	fmt.Fprintf(c.out, "Connected to %s (%d tools). Type 'exit' to quit, /status or /history for diagnostics.\n",
		c.serverName, c.toolCount)

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Fprint(c.out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out, "\nGoodbye!")
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || line == "exit" || line == "quit":
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		case line == "/status":
			observability.PrintStatus(c.serverName, c.toolCount)
			continue
		case line == "/history":
			c.printHistory()
			continue
		}

		answer, err := c.runTurn(ctx, line)
		switch {
		case errors.Is(err, context.Canceled):
			fmt.Fprintln(c.out, "\n(interrupted)")
		case err != nil:
			fmt.Fprintf(c.out, "\nAssistant: Sorry, something went wrong (%v).\n", err)
		default:
			fmt.Fprintf(c.out, "\nAssistant: %s\n", answer)
		}
	}
}

// runTurn executes one user turn with a spinner and per-turn SIGINT
// cancellation.
func (c *ConsoleGateway) runTurn(ctx context.Context, line string) (string, error) {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		select {
		case <-sig:
			cancel()
		case <-turnCtx.Done():
		}
	}()

	c.startThinking()
	defer c.stopThinking()

	return c.assistant.HandleUserTurn(turnCtx, line)
}

func (c *ConsoleGateway) printHistory() {
	if c.transcript == nil {
		fmt.Fprintln(c.out, "(no transcript store configured)")
		return
	}
	turns, err := c.transcript.History(c.sessionID, 20)
	if err != nil {
		fmt.Fprintf(c.out, "(failed to read transcript: %v)\n", err)
		return
	}
	if len(turns) == 0 {
		fmt.Fprintln(c.out, "(transcript is empty)")
		return
	}
	for _, t := range turns {
		fmt.Fprintf(c.out, "[%s] %s\n", t.Role, t.Content)
	}
}

func (c *ConsoleGateway) startThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	c.thinkDone = make(chan struct{})
	go func(stop, done chan struct{}) {
		defer close(done)
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				fmt.Fprint(c.out, "\r\033[K")
				return
			case <-ticker.C:
				fmt.Fprintf(c.out, "\r%s thinking...", frames[i%len(frames)])
				i++
			}
		}
	}(c.thinkStop, c.thinkDone)
}

// stopThinking waits for the spinner goroutine to finish so its terminal
// writes never interleave with the answer.
func (c *ConsoleGateway) stopThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if !c.thinking {
		return
	}
	c.thinking = false
	close(c.thinkStop)
	<-c.thinkDone
}

// Stop is a no-op; the REPL exits when Start returns.
func (c *ConsoleGateway) Stop() error { return nil }
