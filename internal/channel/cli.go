package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"palette/internal/domain"
)

// CLI implements domain.Channel for interactive terminal chat. All input
// lines share one session.
type CLI struct {
	sessionID string
	run       RunFunc
	clear     ClearFunc
	logger    *slog.Logger
	in        io.Reader
	out       io.Writer
	spinner   bool
	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
	thinkDone chan struct{}
}

type CLIConfig struct {
	SessionID string
	Run       RunFunc
	Clear     ClearFunc
	Logger    *slog.Logger
	In        io.Reader
	Out       io.Writer
	Spinner   bool
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CLI{
		sessionID: cfg.SessionID,
		run:       cfg.Run,
		clear:     cfg.Clear,
		logger:    cfg.Logger,
		in:        cfg.In,
		out:       cfg.Out,
		spinner:   cfg.Spinner,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the REPL until EOF, /quit or ctx is cancelled.
func (c *CLI) Start(ctx context.Context) error {
	_, _ = fmt.Fprintf(c.out, "Palette chat (session %s). Type your question and press Enter. Type /quit to exit.\n", c.sessionID)
	_, _ = fmt.Fprint(c.out, "You> ")

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			_, _ = fmt.Fprint(c.out, "You> ")
			continue
		case "/quit", "/exit", "/q":
			c.logger.Info("user requested quit")
			return nil
		case "/clear":
			c.clearSession(ctx)
			_, _ = fmt.Fprint(c.out, "You> ")
			continue
		}

		c.startThinking()
		env, err := c.run(ctx, c.sessionID, line)
		c.stopThinking()

		_, _ = fmt.Fprintln(c.out, "--- Palette ---")
		if err != nil {
			_, _ = fmt.Fprintf(c.out, "error: %v\n", err)
		} else {
			_, _ = fmt.Fprintln(c.out, env.Content)
		}
		_, _ = fmt.Fprintln(c.out, "---------------")
		_, _ = fmt.Fprint(c.out, "You> ")
	}
}

func (c *CLI) clearSession(ctx context.Context) {
	if c.clear == nil {
		return
	}
	if err := c.clear(ctx, c.sessionID); err != nil {
		_, _ = fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	_, _ = fmt.Fprintln(c.out, "Conversation cleared.")
}

func (c *CLI) startThinking() {
	if !c.spinner {
		return
	}
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
				fmt.Fprintf(c.out, "\r%s Thinking...", frames[i%len(frames)])
				i++
			}
		}
	}(c.thinkStop, c.thinkDone)
}

func (c *CLI) stopThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if !c.thinking {
		return
	}
	c.thinking = false
	close(c.thinkStop)
	<-c.thinkDone
}

// Stop is a no-op for CLI (we exit when Start returns).
func (c *CLI) Stop() error { return nil }

func (c *CLI) Send(ctx context.Context, chatID string, content string) error {
	_, err := fmt.Fprintln(c.out, content)
	return err
}

var (
	_ domain.Channel = (*CLI)(nil)
	_ domain.Channel = (*Telegram)(nil)
)
