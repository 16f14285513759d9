package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/BearBump/PassportDesk/internal/services/events"
	"github.com/BearBump/PassportDesk/internal/services/pending"
	"github.com/pkg/errors"
)

const consoleHelp = `commands:
  /dispatch STATUS [key=value ...]  submit every queued unit
  /carrier NAME                     set carrier for the next dispatch
  /tracking NUMBER                  set tracking number for the next dispatch
  /set key=value                    set any other metadata field
values may contain spaces: /set condition=minor scratches
  /remove ID                        drop one unit from the queue
  /list                             show the queue
  /help
anything else is treated as a scan
`

// console reads scanner input line by line. The scanner acts as a keyboard,
// so every line is either a scan or an operator command.
type console struct {
	st    *station
	out   io.Writer
	prime func()
}

// OnEvent returns the operator to the scan prompt once a dispatch resolved.
func (c *console) OnEvent(e events.Event) {
	if e.Kind != events.KindRefocus {
		return
	}
	fmt.Fprintf(c.out, "scan> %d pending\n", c.st.queue.Len())
}

func (c *console) run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if c.prime != nil {
			c.prime()
		}
		if strings.HasPrefix(line, "/") {
			c.command(ctx, line)
			continue
		}
		c.scan(ctx, line)
	}
	return errors.Wrap(sc.Err(), "read input")
}

func (c *console) scan(ctx context.Context, raw string) {
	_, err := c.st.queue.Enqueue(ctx, raw)
	switch {
	case err == nil, errors.Is(err, pending.ErrInvalidFormat), errors.Is(err, pending.ErrDuplicate):
		// оператору сообщает feedback
	default:
		fmt.Fprintf(c.out, "[xx] scan not saved: %v\n", err)
	}
}

func (c *console) command(ctx context.Context, line string) {
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]
	form := c.st.reconciler.Form()

	switch name {
	case "/dispatch":
		if len(args) == 0 {
			fmt.Fprintln(c.out, "usage: /dispatch STATUS [key=value ...]")
			return
		}
		form.SetAll(c.pairs(args[1:]))
		out, err := c.st.reconciler.Submit(ctx, models.Status(strings.ToUpper(args[0])))
		printOutcome(c.out, out, err)
	case "/carrier":
		form.Set("carrier", strings.Join(args, " "))
	case "/tracking":
		form.Set("tracking_number", strings.Join(args, " "))
	case "/set":
		form.SetAll(c.pairs(args))
	case "/remove":
		if len(args) != 1 {
			fmt.Fprintln(c.out, "usage: /remove ID")
			return
		}
		if err := c.st.queue.Remove(ctx, args[0]); err != nil {
			fmt.Fprintf(c.out, "[xx] %v\n", err)
		}
	case "/list":
		fmt.Fprint(c.out, renderQueue(c.st.queue.Items()))
	case "/help":
		fmt.Fprint(c.out, consoleHelp)
	default:
		fmt.Fprintf(c.out, "[xx] unknown command %s, try /help\n", name)
	}
}

func (c *console) pairs(args []string) map[string]string {
	out, ignored := parsePairs(args)
	if len(ignored) > 0 {
		fmt.Fprintf(c.out, "[!!] ignored: %s\n", strings.Join(ignored, " "))
	}
	return out
}

// parsePairs turns key=value arguments into metadata. A word without "="
// continues the previous value, so carrier=DHL Express is one value. Words
// that belong to no key are returned as ignored.
func parsePairs(args []string) (map[string]string, []string) {
	out := make(map[string]string, len(args))
	var ignored []string
	key := ""
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		switch {
		case ok && strings.TrimSpace(k) != "":
			key = strings.TrimSpace(k)
			out[key] = v
		case !ok && key != "":
			out[key] += " " + a
		default:
			key = ""
			ignored = append(ignored, a)
		}
	}
	return out, ignored
}
