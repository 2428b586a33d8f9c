package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/thriveup/internal/bus"
	"github.com/matheus3301/thriveup/internal/client"
	"github.com/matheus3301/thriveup/internal/identity"
	"github.com/matheus3301/thriveup/internal/lock"
	"github.com/matheus3301/thriveup/internal/model"
	"github.com/matheus3301/thriveup/internal/session"
)

func (c *cli) dial() *client.Client {
	cl, err := client.New(session.SocketPath(c.session))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for session %q: %v\n", c.session, err)
		os.Exit(1)
	}
	return cl
}

func (c *cli) cmdStatus(ctx context.Context) {
	cl := c.dial()
	defer func() { _ = cl.Close() }()

	st, err := cl.Status(ctx)
	if err != nil {
		holder, _ := lock.Read(session.LockPath(c.session))
		if holder.PID != 0 {
			fail(fmt.Errorf("daemon (PID %d) not answering: %w", holder.PID, err))
		}
		fail(fmt.Errorf("daemon for session %q is not running", c.session))
	}
	if c.json {
		outputJSON(st)
		return
	}
	user := st.UserID
	if user == "" {
		user = "(signed out)"
	}
	fmt.Printf("Session:       %s\n", st.Session)
	fmt.Printf("State:         %s\n", st.State)
	fmt.Printf("User:          %s\n", user)
	fmt.Printf("Notifications: %d\n", st.Notifications)
	fmt.Printf("Uptime:        %s\n", (time.Duration(st.UptimeMs) * time.Millisecond).String())
}

func (c *cli) cmdSessions() {
	list, err := session.List()
	if err != nil {
		fail(err)
	}
	if c.json {
		outputJSON(list)
		return
	}
	if len(list) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	for _, s := range list {
		running := "stopped"
		if s.Running {
			running = "running"
		}
		fmt.Printf("%-20s %s (%s)\n", s.Name, s.Path, running)
	}
}

func (c *cli) cmdNotifications(ctx context.Context, args []string) {
	if len(args) == 0 {
		usage("notifications <list|open <senderID>|watch>")
	}
	cl := c.dial()
	defer func() { _ = cl.Close() }()

	switch args[0] {
	case "list":
		items, err := cl.ListNotifications(ctx)
		if err != nil {
			fail(err)
		}
		if c.json {
			outputJSON(items)
			return
		}
		if len(items) == 0 {
			fmt.Println("No notifications.")
			return
		}
		for _, n := range items {
			printNotification(n)
		}
	case "open":
		if len(args) < 2 {
			usage("notifications open <senderID>")
		}
		threadID, dismissed, err := cl.OpenChat(ctx, args[1])
		if err != nil {
			fail(err)
		}
		if c.json {
			outputJSON(map[string]any{"thread_id": threadID, "dismissed": dismissed})
			return
		}
		fmt.Printf("Thread %s opened, %d notification(s) dismissed.\n", threadID, dismissed)
	case "watch":
		updates, errc, err := cl.Watch(ctx)
		if err != nil {
			fail(err)
		}
		for u := range updates {
			if c.json {
				outputJSON(u)
				continue
			}
			switch u.Kind {
			case bus.KindNotificationCreated:
				if u.Notification != nil {
					printNotification(*u.Notification)
				}
			case bus.KindNotificationDismissed:
				fmt.Printf("dismissed %d from %s (thread %s)\n", len(u.IDs), u.SenderID, u.ThreadID)
			}
		}
		select {
		case err := <-errc:
			fail(err)
		default:
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown notifications subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func printNotification(n model.NotificationItem) {
	ts := "-"
	if !n.Timestamp.IsZero() {
		ts = n.Timestamp.Local().Format("2006-01-02 15:04")
	}
	fmt.Printf("%-16s %-20s %-12s %s\n", ts, n.Name, n.SenderID, n.ID)
}

func (c *cli) cmdDevToken(args []string) {
	if len(args) == 0 {
		usage("dev-token <uid> [ttl]")
	}
	if c.cfg.Auth.DevSecret == "" {
		fail(errors.New("auth.dev_secret is not configured"))
	}
	ttl := 24 * time.Hour
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			fail(fmt.Errorf("ttl: %w", err))
		}
		ttl = d
	}
	token, err := identity.IssueDevToken(c.cfg.Auth.DevSecret, args[0], ttl)
	if err != nil {
		fail(err)
	}
	fmt.Println(token)
}
