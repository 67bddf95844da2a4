package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/dvcrn/callme-client/internal/apiclient"
	"github.com/dvcrn/callme-client/internal/app"
	"github.com/dvcrn/callme-client/internal/config"
	"github.com/dvcrn/callme-client/internal/logger"
	"github.com/dvcrn/callme-client/internal/validate"
	"github.com/jessevdk/go-flags"
)

// Version contains the current or build version. Set it at build time with:
//
//	go build -ldflags="-X 'main.Version=v1.0.0'"
var Version = "unknown"

type globalOptions struct {
	BaseURL   string `long:"api" description:"Base URL of the reminder API (overrides CALLME_API_BASE_URL)"`
	StatePath string `long:"state" description:"Path of the local state file (overrides CALLME_STATE_PATH)"`
	Verbose   bool   `short:"v" long:"verbose" description:"Log requests and token refreshes to stderr"`
}

type cli struct {
	opts   globalOptions
	stdout io.Writer
	stderr io.Writer
	getenv config.Getenv
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, os.Getenv))
}

func run(args []string, stdout, stderr io.Writer, getenv config.Getenv) int {
	c := &cli{stdout: stdout, stderr: stderr, getenv: getenv}

	parser := flags.NewParser(&c.opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "callme"
	c.register(parser)

	_, err := parser.ParseArgs(args)
	if err == nil {
		return 0
	}

	var flagsErr *flags.Error
	if errors.As(err, &flagsErr) {
		if flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, flagsErr.Message)
			return 0
		}
		fmt.Fprintln(stderr, flagsErr.Message)
		return 2
	}

	var fieldErrs validate.Errors
	switch {
	case errors.Is(err, apiclient.ErrSessionExpired):
		fmt.Fprintln(stderr, apiclient.ErrSessionExpired.Error())
	case errors.As(err, &fieldErrs):
		for _, fe := range fieldErrs {
			fmt.Fprintf(stderr, "%s: %s\n", fe.Field, fe.Message)
		}
	default:
		fmt.Fprintln(stderr, "error:", err)
	}
	return 1
}

func (c *cli) register(p *flags.Parser) {
	commands := []struct {
		name, short string
		data        interface{}
	}{
		{"signup", "Create an account and log in", &signupCmd{c: c}},
		{"login", "Log in with email and password", &loginCmd{c: c}},
		{"logout", "Log out and forget local credentials", &logoutCmd{c: c}},
		{"whoami", "Show the logged in user", &whoamiCmd{c: c}},
		{"list", "List reminders", &listCmd{c: c}},
		{"add", "Schedule a reminder call", &addCmd{c: c}},
		{"edit", "Change a reminder", &editCmd{c: c}},
		{"delete", "Delete a reminder", &deleteCmd{c: c}},
		{"stats", "Show reminder counts per status", &statsCmd{c: c}},
		{"reset-password", "Request or confirm a password reset", &resetPasswordCmd{c: c}},
		{"change-password", "Change the password of the logged in user", &changePasswordCmd{c: c}},
		{"version", "Print the version", &versionCmd{c: c}},
	}
	for _, cmd := range commands {
		if _, err := p.AddCommand(cmd.name, cmd.short, cmd.short, cmd.data); err != nil {
			panic(fmt.Sprintf("failed to register command %s: %v", cmd.name, err))
		}
	}
}

// withApp loads the configuration, opens the state file and runs fn
func (c *cli) withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(c.getenv)
	if err != nil {
		return err
	}
	if c.opts.BaseURL != "" {
		cfg.BaseURL = c.opts.BaseURL
	}
	if c.opts.StatePath != "" {
		cfg.StatePath = c.opts.StatePath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := c.getenv("LOG_LEVEL")
	if c.opts.Verbose {
		level = "debug"
	} else if level == "" {
		level = "error"
	}
	log := logger.NewWithWriter(c.stderr, c.getenv("ENV"), level)

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return fn(ctx, a)
}
