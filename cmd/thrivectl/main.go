package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matheus3301/thriveup/internal/config"
	"github.com/matheus3301/thriveup/internal/session"
)

type cli struct {
	session string
	cfg     *config.Config
	json    bool
}

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fail(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Resolve(session.ConfigPath(), session.EnvPath())
	if err != nil {
		fail(err)
	}
	c := &cli{session: sessionName, cfg: cfg, json: *jsonFlag}

	// Streaming commands run until interrupted; the rest get 10s.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if !streaming(args) {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	switch args[0] {
	case "status":
		c.cmdStatus(ctx)
	case "sessions":
		c.cmdSessions()
	case "notifications":
		c.cmdNotifications(ctx, args[1:])
	case "dev-token":
		c.cmdDevToken(args[1:])
	case "whoami", "users", "threads", "messages", "send", "messaged", "friends", "events", "interests":
		c.runLocal(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func streaming(args []string) bool {
	switch args[0] {
	case "notifications":
		return len(args) > 1 && args[1] == "watch"
	case "messages":
		for _, a := range args[1:] {
			if a == "--watch" || a == "-watch" {
				return true
			}
		}
	}
	return false
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: thrivectl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                          Show daemon status")
	fmt.Fprintln(os.Stderr, "  sessions                        List known sessions")
	fmt.Fprintln(os.Stderr, "  notifications list              List pending notifications")
	fmt.Fprintln(os.Stderr, "  notifications open <senderID>   Open chat with sender and dismiss")
	fmt.Fprintln(os.Stderr, "  notifications watch             Stream notification updates")
	fmt.Fprintln(os.Stderr, "  whoami                          Show the signed-in user")
	fmt.Fprintln(os.Stderr, "  users                           List users")
	fmt.Fprintln(os.Stderr, "  threads                         List chat threads with previews")
	fmt.Fprintln(os.Stderr, "  messages <userID> [--watch]     Show the thread with a user")
	fmt.Fprintln(os.Stderr, "  send <userID> <text>            Send a message")
	fmt.Fprintln(os.Stderr, "  messaged                        List users who messaged you")
	fmt.Fprintln(os.Stderr, "  friends list|requests|suggest")
	fmt.Fprintln(os.Stderr, "  friends request <uid>|accept <requestID>|remove <friendID>")
	fmt.Fprintln(os.Stderr, "  events list|registered|bookmarks")
	fmt.Fprintln(os.Stderr, "  events registrations <eventID>")
	fmt.Fprintln(os.Stderr, "  events bookmark|unregister <eventID>")
	fmt.Fprintln(os.Stderr, "  events ticket <eventID> <out.png>")
	fmt.Fprintln(os.Stderr, "  interests get|set <a,b,...>")
	fmt.Fprintln(os.Stderr, "  dev-token <uid> [ttl]           Sign a development token")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func usage(line string) {
	fmt.Fprintln(os.Stderr, "usage: thrivectl "+line)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
