package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const helpText = "Commands: /new, /recent, /open <n|session-id>, /attach <path>, /help, /quit. Anything else is sent as a message."

// RunREPL reads lines from in until EOF or /quit. Lines starting with "/"
// are commands; everything else is sent on the current session. Command
// errors are printed and the loop continues.
func (c *Controller) RunREPL(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(c.out, helpText)

	for {
		fmt.Fprintf(c.out, "chat %s> ", c.status())
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			// Send renders its own failures
			_ = c.Send(ctx, line)
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		var err error
		switch cmd {
		case "/help":
			fmt.Fprintln(c.out, helpText)
		case "/new":
			err = c.NewSession(ctx)
		case "/recent":
			var ids []string
			ids, err = c.Recent(ctx)
			if err == nil && len(ids) == 0 {
				fmt.Fprintln(c.out, "no recent chats")
			}
		case "/open":
			err = c.openArg(ctx, arg)
		case "/attach":
			var note string
			if note, err = c.Attach(arg); err == nil {
				fmt.Fprintf(c.out, "will attach:%s\n", note)
			}
		case "/quit", "/exit":
			fmt.Fprintln(c.out, "Bye!")
			return nil
		default:
			fmt.Fprintln(c.out, "Unknown command:", cmd)
		}
		if err != nil {
			fmt.Fprintln(c.out, "error:", err)
		}
	}
}

// openArg accepts a "Chat N" number from the last /recent or a raw id.
func (c *Controller) openArg(ctx context.Context, arg string) error {
	if arg == "" {
		return fmt.Errorf("usage: /open <n|session-id>")
	}
	if n, err := strconv.Atoi(arg); err == nil {
		id, ok := c.ResolveRecent(n)
		if !ok {
			return fmt.Errorf("no chat %d in the last /recent listing", n)
		}
		return c.Open(ctx, id)
	}
	return c.Open(ctx, arg)
}

func (c *Controller) status() string {
	if c.state.UserName != "" {
		return "(" + c.state.UserName + ")"
	}
	if !c.state.Authenticated() {
		return "(signed out)"
	}
	return ""
}
