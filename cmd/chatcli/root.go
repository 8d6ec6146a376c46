package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zhouzirui/gemchat/backend/internal/client/api"
	"github.com/zhouzirui/gemchat/backend/internal/client/state"
	"github.com/zhouzirui/gemchat/backend/internal/client/ui"
)

const defaultServer = "http://localhost:3000"

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

type options struct {
	server    string
	statePath string
}

// app bundles what every subcommand needs.
type app struct {
	ctrl  *ui.Controller
	store *state.Store
	in    *bufio.Reader
	out   io.Writer
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".gemchat", "state.db")
	}
	return filepath.Join(home, ".gemchat", "state.db")
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// newRootCmd 构建 Cobra 命令树
func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "chatcli",
		Short:         "Terminal client for the chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOrDefault("CHAT_SERVER_URL", defaultServer), "chat server base URL")
	root.PersistentFlags().StringVar(&opts.statePath, "state", defaultStatePath(), "local state database")

	// withApp opens the local state, boots the controller and runs fn.
	withApp := func(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			store, err := state.Open(ctx, opts.statePath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctrl := ui.NewController(api.New(opts.server, nil), store, cmd.OutOrStdout())
			if err := ctrl.Boot(ctx); err != nil {
				return err
			}
			return fn(ctx, &app{
				ctrl:  ctrl,
				store: store,
				in:    bufio.NewReader(cmd.InOrStdin()),
				out:   cmd.OutOrStdout(),
			}, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "signup",
			Short: "Create an account and sign in",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
				name, err := prompt(a.in, a.out, "Name")
				if err != nil {
					return err
				}
				email, err := prompt(a.in, a.out, "Email")
				if err != nil {
					return err
				}
				password, err := promptPassword(a.in, a.out)
				if err != nil {
					return err
				}
				return a.ctrl.Signup(ctx, name, email, password)
			}),
		},
		&cobra.Command{
			Use:   "signin",
			Short: "Sign in with email and password",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
				email, err := prompt(a.in, a.out, "Email")
				if err != nil {
					return err
				}
				password, err := promptPassword(a.in, a.out)
				if err != nil {
					return err
				}
				return a.ctrl.Signin(ctx, email, password)
			}),
		},
		&cobra.Command{
			Use:   "logout",
			Short: "Forget the stored token",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
				if err := a.ctrl.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "signed out")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "whoami",
			Short: "Show the signed-in user and current session",
			Args:  cobra.NoArgs,
			RunE: withApp(func(_ context.Context, a *app, _ []string) error {
				st := a.ctrl.State()
				if !st.Authenticated() {
					fmt.Fprintln(a.out, "not signed in")
				} else {
					fmt.Fprintf(a.out, "user: %s\n", st.UserName)
				}
				fmt.Fprintf(a.out, "session: %s\n", st.SessionID)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Check the server and show the local identity",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
				a.ctrl.Status(ctx)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Forget the token and start a new session",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
				if err := a.ctrl.Reset(ctx); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "local state cleared")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "chat",
			Short: "Interactive chat on the current session",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
				return a.ctrl.RunREPL(ctx, a.in)
			}),
		},
		&cobra.Command{
			Use:   "send <text>",
			Short: "Send one message on the current session",
			Args:  cobra.MinimumNArgs(1),
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				return a.ctrl.Send(ctx, strings.Join(args, " "))
			}),
		},
		&cobra.Command{
			Use:   "history [session-id]",
			Short: "Print a session transcript (current session by default)",
			Args:  cobra.MaximumNArgs(1),
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				id := a.ctrl.State().SessionID
				if len(args) == 1 {
					id = args[0]
				}
				return a.ctrl.Open(ctx, id)
			}),
		},
		&cobra.Command{
			Use:   "recent",
			Short: "List recently active sessions",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
				ids, err := a.ctrl.Recent(ctx)
				if err == nil && len(ids) == 0 {
					fmt.Fprintln(a.out, "no recent chats")
				}
				return err
			}),
		},
	)

	return root
}

// prompt prints label and reads one trimmed line.
func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprintf(out, "%s: ", label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads without echo when stdin is a terminal.
func promptPassword(in *bufio.Reader, out io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return prompt(in, out, "Password")
	}

	fmt.Fprint(out, "Password: ")
	pw, err := readPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
