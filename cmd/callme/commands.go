package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dvcrn/callme-client/internal/app"
	"github.com/dvcrn/callme-client/internal/reminders"
)

const localTimeLayout = "2006-01-02T15:04"

type signupCmd struct {
	c          *cli
	Email      string `long:"email" required:"true" description:"Account email"`
	Password   string `long:"password" env:"CALLME_PASSWORD" required:"true" description:"Account password"`
	RememberMe bool   `long:"remember-me" description:"Keep the refresh credential for 7 days"`
}

func (cmd *signupCmd) Execute([]string) error {
	return cmd.c.withApp(func(ctx context.Context, a *app.App) error {
		u, err := a.Auth.Signup(ctx, cmd.Email, cmd.Password, cmd.RememberMe)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.c.stdout, "Account created, logged in as %s\n", u.Email)
		return nil
	})
}

type loginCmd struct {
	c          *cli
	Email      string `long:"email" required:"true" description:"Account email"`
	Password   string `long:"password" env:"CALLME_PASSWORD" required:"true" description:"Account password"`
	RememberMe bool   `long:"remember-me" description:"Keep the refresh credential for 7 days"`
}

func (cmd *loginCmd) Execute([]string) error {
	return cmd.c.withApp(func(ctx context.Context, a *app.App) error {
		u, err := a.Auth.Login(ctx, cmd.Email, cmd.Password, cmd.RememberMe)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.c.stdout, "Logged in as %s\n", u.Email)
		return nil
	})
}

type logoutCmd struct {
	c *cli
}

func (cmd *logoutCmd) Execute([]string) error {
	return cmd.c.withApp(func(ctx context.Context, a *app.App) error {
		// local credentials are gone either way
		if err := a.Auth.Logout(ctx); err != nil {
			fmt.Fprintln(cmd.c.stderr, "warning: logout request failed:", err)
		}
		fmt.Fprintln(cmd.c.stdout, "Logged out")
		return nil
	})
}

type whoamiCmd struct {
	c *cli
}

func (cmd *whoamiCmd) Execute([]string) error {
	return cmd.c.withApp(func(ctx context.Context, a *app.App) error {
		u, err := a.Auth.Me(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.c.stdout, "%s (id %d, member since %s)\n", u.Email, u.ID, u.CreatedAt.Format("2006-01-02"))
		return nil
	})
}

type listCmd struct {
	c        *cli
	Page     int    `long:"page" default:"1" description:"Page number, starting at 1"`
	PageSize int    `long:"page-size" default:"10" description:"Reminders per page (max 100)"`
	Status   string `long:"status" choice:"scheduled" choice:"completed" choice:"failed" description:"Only show reminders with this status"`
	Search   string `long:"search" description:"Only show reminders whose title or message contains this text"`
}

func (cmd *listCmd) Execute([]string) error {
	return cmd.c.withApp(func(ctx context.Context, a *app.App) error {
		page, err := a.Reminders.List(ctx, reminders.ListOptions{
			Skip:   reminders.Offset(cmd.Page, cmd.PageSize),
			Limit:  cmd.PageSize,
			Status: reminders.Status(cmd.Status),
			Search: cmd.Search,
		})
		if err != nil {
			return err
		}

		if len(page.Items) == 0 {
			fmt.Fprintln(cmd.c.stdout, "No reminders found")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.c.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tPHONE\tWHEN\tTIMEZONE\tSTATUS")
		for _, r := range page.Items {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
				r.ID, truncate(r.Title, 40), r.PhoneNumber, formatWhen(r), r.Timezone, r.Status)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.c.stdout, "Page %d of %d (%d total)\n",
			cmd.Page, reminders.Pages(page.Total, cmd.PageSize), page.Total)
		shown := reminders.Summarize(page.Items)
		fmt.Fprintf(cmd.c.stdout, "On this page: %d scheduled, %d completed, %d failed\n",
			shown.Scheduled, shown.Completed, shown.Failed)
		return nil
	})
}

type addCmd struct {
	c        *cli
	Title    string `long:"title" required:"true" description:"Short title"`
	Message  string `long:"message" required:"true" description:"What the call should say"`
	Phone    string `long:"phone" required:"true" description:"Phone number, with country code"`
	At       string `long:"at" required:"true" description:"When to call: RFC 3339, or YYYY-MM-DDTHH:MM in --timezone"`
	Timezone string `long:"timezone" default:"UTC" description:"IANA timezone or UTC±N offset of the reminder"`
}

func (cmd *addCmd) Execute([]string) error {
	at, err := parseWhen(cmd.At, cmd.Timezone)
	if err != nil {
		return err
	}
	return cmd.c.withApp(func(ctx context.Context, a *app.App) error {
		r, err := a.Reminders.Create(ctx, reminders.Create{
			Title:       cmd.Title,
			Message:     cmd.Message,
			PhoneNumber: cmd.Phone,
			DateTime:    at,
			Timezone:    cmd.Timezone,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.c.stdout, "Scheduled reminder %d for %s\n", r.ID, formatWhen(*r))
		return nil
	})
}

type editCmd struct {
	c        *cli
	ID       int    `long:"id" required:"true" description:"Reminder id"`
	Title    string `long:"title" description:"New title"`
	Message  string `long:"message" description:"New message"`
	Phone    string `long:"phone" description:"New phone number"`
	At       string `long:"at" description:"New call time: RFC 3339, or YYYY-MM-DDTHH:MM in --timezone (default: the reminder's timezone)"`
	Timezone string `long:"timezone" description:"New timezone"`
	Status   string `long:"status" choice:"scheduled" choice:"completed" choice:"failed" description:"New status"`
}

func (cmd *editCmd) Execute([]string) error {
	var u reminders.Update
	if cmd.Title != "" {
		u.Title = &cmd.Title
	}
	if cmd.Message != "" {
		u.Message = &cmd.Message
	}
	if cmd.Phone != "" {
		u.PhoneNumber = &cmd.Phone
	}
	if cmd.Timezone != "" {
		u.Timezone = &cmd.Timezone
	}
	if cmd.Status != "" {
		status := reminders.Status(cmd.Status)
		u.Status = &status
	}

	return cmd.c.withApp(func(ctx context.Context, a *app.App) error {
		if cmd.At != "" {
			tz := cmd.Timezone
			if tz == "" {
				current, err := a.Reminders.Get(ctx, cmd.ID)
				if err != nil {
					return err
				}
				tz = current.Timezone
			}
			at, err := parseWhen(cmd.At, tz)
			if err != nil {
				return err
			}
			u.DateTime = &at
		}

		r, err := a.Reminders.Update(ctx, cmd.ID, u)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.c.stdout, "Updated reminder %d (%s, %s)\n", r.ID, r.Title, r.Status)
		return nil
	})
}

type deleteCmd struct {
	c  *cli
	ID int `long:"id" required:"true" description:"Reminder id"`
}

func (cmd *deleteCmd) Execute([]string) error {
	return cmd.c.withApp(func(ctx context.Context, a *app.App) error {
		if err := a.Reminders.Delete(ctx, cmd.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.c.stdout, "Deleted reminder %d\n", cmd.ID)
		return nil
	})
}

type statsCmd struct {
	c *cli
}

func (cmd *statsCmd) Execute([]string) error {
	return cmd.c.withApp(func(ctx context.Context, a *app.App) error {
		st, err := a.Reminders.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.c.stdout, "Total: %d\nScheduled: %d\nCompleted: %d\nFailed: %d\n",
			st.Total, st.Scheduled, st.Completed, st.Failed)
		return nil
	})
}

type resetPasswordCmd struct {
	c           *cli
	Email       string `long:"email" description:"Send reset instructions to this email"`
	Token       string `long:"token" description:"Reset token from the email"`
	NewPassword string `long:"new-password" env:"CALLME_NEW_PASSWORD" description:"New password, used with --token"`
}

func (cmd *resetPasswordCmd) Execute([]string) error {
	if (cmd.Email == "") == (cmd.Token == "") {
		return fmt.Errorf("pass either --email to request a reset or --token with --new-password to confirm one")
	}
	return cmd.c.withApp(func(ctx context.Context, a *app.App) error {
		if cmd.Email != "" {
			msg, err := a.Auth.RequestPasswordReset(ctx, cmd.Email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.c.stdout, msg)
			return nil
		}
		if err := a.Auth.ConfirmPasswordReset(ctx, cmd.Token, cmd.NewPassword); err != nil {
			return err
		}
		fmt.Fprintln(cmd.c.stdout, "Password reset successful")
		return nil
	})
}

type changePasswordCmd struct {
	c           *cli
	Current     string `long:"current" env:"CALLME_PASSWORD" required:"true" description:"Current password"`
	NewPassword string `long:"new-password" env:"CALLME_NEW_PASSWORD" required:"true" description:"New password"`
}

func (cmd *changePasswordCmd) Execute([]string) error {
	return cmd.c.withApp(func(ctx context.Context, a *app.App) error {
		if err := a.Auth.ChangePassword(ctx, cmd.Current, cmd.NewPassword); err != nil {
			return err
		}
		fmt.Fprintln(cmd.c.stdout, "Password changed")
		return nil
	})
}

type versionCmd struct {
	c *cli
}

func (cmd *versionCmd) Execute([]string) error {
	fmt.Fprintln(cmd.c.stdout, "callme", Version)
	return nil
}

// parseWhen accepts RFC 3339, or a wall clock time read in tz
func parseWhen(value, tz string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	loc, err := reminders.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("timezone %q: %w", tz, err)
	}
	t, err := time.ParseInLocation(localTimeLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: expected RFC 3339 or %s", value, localTimeLayout)
	}
	return t, nil
}

func formatWhen(r reminders.Reminder) string {
	t := r.DateTime
	if loc, err := reminders.LoadLocation(r.Timezone); err == nil {
		t = t.In(loc)
	}
	return t.Format("2006-01-02 15:04 MST")
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
