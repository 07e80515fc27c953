package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/d1nch8g/voiceorder/api"
	"github.com/d1nch8g/voiceorder/store"
)

// controller is the part of the engine the console drives.
type controller interface {
	SendText(ctx context.Context, text string) bool
	ToggleRecording() error
	RefreshMenu(ctx context.Context) error
	LookupOrder(ctx context.Context, id string) (*api.Order, error)
	Store() *store.Store
}

type console struct {
	ctl controller
	out io.Writer
}

func newConsole(ctl controller, out io.Writer) *console {
	return &console{ctl: ctl, out: out}
}

// run executes one command per input line until in is exhausted, /quit is
// read or ctx is cancelled.
func (c *console) run(ctx context.Context, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || !c.handle(ctx, line) {
				return
			}
		}
	}
}

// handle executes one line and reports whether the console should keep
// reading.
func (c *console) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	if !strings.HasPrefix(line, "/") {
		c.ctl.SendText(ctx, line)
		return true
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return false

	case "/talk":
		if err := c.ctl.ToggleRecording(); err != nil {
			slog.Warn("recording toggle failed", "err", err)
		}

	case "/menu":
		rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := c.ctl.RefreshMenu(rctx); err != nil {
			c.ctl.Store().SetNotice(err.Error())
		}

	case "/order":
		if arg == "" {
			c.ctl.Store().SetNotice("usage: /order <id>")
			return true
		}
		rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		order, err := c.ctl.LookupOrder(rctx, arg)
		if err != nil {
			c.ctl.Store().SetNotice(err.Error())
			return true
		}
		fmt.Fprintf(c.out, "order %s: %s, total %.2f\n", order.ID, order.Status, float64(order.Total))

	case "/ok":
		c.ctl.Store().DismissThankYou()

	default:
		c.ctl.Store().SetNotice("unknown command " + cmd)
	}
	return true
}
