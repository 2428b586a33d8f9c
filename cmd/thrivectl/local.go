package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/matheus3301/thriveup/internal/backend"
	"github.com/matheus3301/thriveup/internal/bus"
	"github.com/matheus3301/thriveup/internal/chat"
	"github.com/matheus3301/thriveup/internal/events"
	"github.com/matheus3301/thriveup/internal/friends"
	"github.com/matheus3301/thriveup/internal/identity"
	"github.com/matheus3301/thriveup/internal/model"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// local runs data-access commands in-process against the remote store.
type local struct {
	*cli
	be      *backend.Backend
	chats   *chat.Manager
	friends *friends.Service
	events  *events.Service
}

func cliLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func (c *cli) runLocal(ctx context.Context, args []string) {
	logger := cliLogger()
	defer func() { _ = logger.Sync() }()

	be, err := backend.Open(ctx, c.cfg, bus.New(), logger)
	if err != nil {
		fail(err)
	}
	defer func() { _ = be.Close() }()

	l := &local{
		cli:     c,
		be:      be,
		chats:   chat.NewManager(be.Store, c.cfg.BatchSize, logger),
		friends: friends.NewService(be.Store, logger),
		events:  events.NewService(be.Store, logger),
	}

	switch args[0] {
	case "whoami":
		l.cmdWhoami(ctx)
	case "users":
		l.printUsers(l.chats.FetchUsers(ctx))
	case "threads":
		l.cmdThreads(ctx)
	case "messages":
		l.cmdMessages(ctx, args[1:])
	case "send":
		l.cmdSend(ctx, args[1:])
	case "messaged":
		l.printUsers(l.chats.FetchUsersWhoMessaged(ctx, l.uid(ctx)))
	case "friends":
		l.cmdFriends(ctx, args[1:])
	case "events":
		l.cmdEvents(ctx, args[1:])
	case "interests":
		l.cmdInterests(ctx, args[1:])
	}
}

func (l *local) uid(ctx context.Context) string {
	uid, err := identity.Require(ctx, l.be.Identity)
	if err != nil {
		fail(err)
	}
	return uid
}

// me returns the signed-in user, named "Unknown" when it has no document.
func (l *local) me(ctx context.Context) model.User {
	uid := l.uid(ctx)
	u, err := l.friends.FetchUserDetails(ctx, uid)
	if err != nil {
		fail(err)
	}
	if u == nil {
		return model.User{ID: uid, Name: model.UnknownName}
	}
	return *u
}

func (l *local) user(ctx context.Context, uid string) model.User {
	u, err := l.friends.FetchUserDetails(ctx, uid)
	if err != nil {
		fail(err)
	}
	if u == nil {
		fail(fmt.Errorf("user %s not found", uid))
	}
	return *u
}

func (l *local) thread(ctx context.Context, otherID string) (model.User, *model.ChatThread) {
	me := l.me(ctx)
	t, err := l.chats.FetchOrCreateChatThread(ctx, me, l.user(ctx, otherID))
	if err != nil {
		fail(err)
	}
	return me, t
}

func (l *local) cmdWhoami(ctx context.Context) {
	me := l.me(ctx)
	if l.json {
		outputJSON(me)
		return
	}
	fmt.Printf("%s (%s)\n", me.Name, me.ID)
}

func (l *local) printUsers(users []model.User) {
	if l.json {
		outputJSON(users)
		return
	}
	if len(users) == 0 {
		fmt.Println("No users.")
		return
	}
	for _, u := range users {
		fmt.Printf("%-28s %s\n", u.ID, u.Name)
	}
}

func (l *local) cmdThreads(ctx context.Context) {
	me := l.me(ctx)
	threads := l.chats.FetchChatThreads(ctx, me)
	if l.json {
		outputJSON(threads)
		return
	}
	if len(threads) == 0 {
		fmt.Println("No chats.")
		return
	}
	for _, t := range threads {
		other, _ := t.Other(me.ID)
		preview := chat.NoMessagesYet
		if len(t.Messages) > 0 {
			preview = t.Messages[0].Content
		}
		fmt.Printf("%-20s %s\n", other.Name, preview)
	}
}

func (l *local) cmdMessages(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("messages", flag.ExitOnError)
	watch := fs.Bool("watch", false, "keep streaming new messages")
	if len(args) == 0 {
		usage("messages <userID> [--watch]")
	}
	_ = fs.Parse(args[1:])

	me, t := l.thread(ctx, args[0])
	snaps, stop := l.chats.FetchMessages(ctx, *t, me.ID)
	defer stop()

	shown := 0
	for msgs := range snaps {
		if shown > len(msgs) {
			shown = 0
		}
		if l.json {
			outputJSON(msgs[shown:])
		} else {
			for _, m := range msgs[shown:] {
				who := m.Sender.Name
				if m.IsSender {
					who = "you"
				}
				fmt.Printf("%s  %-12s %s\n", m.Timestamp.Local().Format("01-02 15:04"), who, m.Content)
			}
		}
		shown = len(msgs)
		if !*watch {
			return
		}
	}
}

func (l *local) cmdSend(ctx context.Context, args []string) {
	if len(args) < 2 {
		usage("send <userID> <text>")
	}
	me, t := l.thread(ctx, args[0])
	if err := l.chats.SendMessage(ctx, *t, strings.Join(args[1:], " "), me.ID); err != nil {
		fail(err)
	}
	fmt.Printf("Sent to %s.\n", t.ID)
}

func (l *local) cmdFriends(ctx context.Context, args []string) {
	if len(args) == 0 {
		usage("friends <list|requests|suggest|request <uid>|accept <requestID>|remove <friendID>>")
	}
	switch args[0] {
	case "list":
		list, err := l.friends.FetchFriends(ctx, l.uid(ctx))
		if err != nil {
			fail(err)
		}
		if l.json {
			outputJSON(list)
			return
		}
		for _, f := range list {
			fmt.Printf("%-38s %s\n", f.ID, f.FriendID)
		}
	case "requests":
		reqs, err := l.friends.FetchFriendRequests(ctx, l.uid(ctx))
		if err != nil {
			fail(err)
		}
		if l.json {
			outputJSON(reqs)
			return
		}
		for _, r := range reqs {
			fmt.Printf("%-38s from %s\n", r.ID, r.FromUserID)
		}
	case "suggest":
		users, err := l.friends.FetchUsersExcludingFriends(ctx, l.uid(ctx))
		if err != nil {
			fail(err)
		}
		l.printUsers(users)
	case "request":
		if len(args) < 2 {
			usage("friends request <uid>")
		}
		req, err := l.friends.SendFriendRequest(ctx, l.uid(ctx), args[1])
		if err != nil {
			fail(err)
		}
		fmt.Printf("Request %s sent.\n", req.ID)
	case "accept":
		if len(args) < 2 {
			usage("friends accept <requestID>")
		}
		f, err := l.friends.AcceptFriendRequest(ctx, args[1])
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s is now a friend of %s (%s).\n", f.FriendID, f.UserID, f.ID)
	case "remove":
		if len(args) < 2 {
			usage("friends remove <friendID>")
		}
		if err := l.friends.RemoveFriend(ctx, args[1]); err != nil {
			fail(err)
		}
		fmt.Println("Removed.")
	default:
		fmt.Fprintf(os.Stderr, "unknown friends subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func (l *local) printEvents(list []model.Event) {
	if l.json {
		outputJSON(list)
		return
	}
	if len(list) == 0 {
		fmt.Println("No events.")
		return
	}
	for _, e := range list {
		fmt.Printf("%-24s %-14s %-12s %s\n", e.ID, e.Category, e.Date, e.Title)
	}
}

func (l *local) cmdEvents(ctx context.Context, args []string) {
	if len(args) == 0 {
		usage("events <list|registered|bookmarks|registrations <eventID>|bookmark <eventID>|unregister <eventID>|ticket <eventID> <out.png>>")
	}
	switch args[0] {
	case "list":
		list, err := l.events.ListEvents(ctx)
		if err != nil {
			fail(err)
		}
		l.printEvents(list)
	case "registered":
		list, err := l.events.RegisteredEvents(ctx, l.uid(ctx))
		if err != nil {
			fail(err)
		}
		l.printEvents(list)
	case "bookmarks":
		list, err := l.events.Bookmarks(ctx, l.uid(ctx))
		if err != nil {
			fail(err)
		}
		l.printEvents(list)
	case "registrations":
		if len(args) < 2 {
			usage("events registrations <eventID>")
		}
		regs, err := l.events.Registrations(ctx, args[1])
		if err != nil {
			fail(err)
		}
		l.printRegistrations(ctx, regs)
	case "bookmark":
		if len(args) < 2 {
			usage("events bookmark <eventID>")
		}
		e, err := l.events.GetEvent(ctx, args[1])
		if err != nil {
			fail(err)
		}
		if e == nil {
			fail(fmt.Errorf("event %s not found", args[1]))
		}
		if err := l.events.BookmarkEvent(ctx, l.uid(ctx), *e); err != nil {
			fail(err)
		}
		fmt.Printf("Bookmarked %s.\n", e.Title)
	case "unregister":
		if len(args) < 2 {
			usage("events unregister <eventID>")
		}
		if err := l.events.Unregister(ctx, l.uid(ctx), args[1]); err != nil {
			fail(err)
		}
		fmt.Println("Unregistered.")
	case "ticket":
		if len(args) < 3 {
			usage("events ticket <eventID> <out.png>")
		}
		l.cmdTicket(ctx, args[1], args[2])
	default:
		fmt.Fprintf(os.Stderr, "unknown events subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func (l *local) printRegistrations(ctx context.Context, regs []model.Registration) {
	if l.json {
		outputJSON(regs)
		return
	}
	if len(regs) == 0 {
		fmt.Println("No registrations.")
		return
	}
	for _, r := range regs {
		name := model.UnknownName
		if u, err := l.friends.FetchUserDetails(ctx, r.UserID); err == nil && u != nil {
			name = u.Name
		}
		fmt.Printf("%-24s %-28s %s\n", r.ID, r.UserID, name)
	}
}

func (l *local) cmdTicket(ctx context.Context, eventID, out string) {
	t, err := l.events.Ticket(ctx, l.uid(ctx), eventID)
	if errors.Is(err, events.ErrNotRegistered) {
		fail(fmt.Errorf("you are not registered for %s", eventID))
	}
	if err != nil {
		fail(err)
	}
	if err := os.WriteFile(out, t.QRCode, 0600); err != nil {
		fail(err)
	}
	if l.json {
		outputJSON(t)
		return
	}
	fmt.Printf("%s\n%s %s, %s\nHolder: %s\n", t.Event.Title, t.Event.Date, t.Event.Time, t.Event.Location, t.HolderName)
	if t.QRContent != "" {
		if art, err := events.RenderQR(t.QRContent); err == nil {
			fmt.Print(art)
		}
	}
	fmt.Printf("QR code written to %s\n", out)
}

func (l *local) cmdInterests(ctx context.Context, args []string) {
	if len(args) == 0 {
		usage("interests <get|set <a,b,...>>")
	}
	uid := l.uid(ctx)
	switch args[0] {
	case "get":
		in, err := l.events.FetchInterests(ctx, uid)
		if err != nil {
			fail(err)
		}
		if l.json {
			outputJSON(in)
			return
		}
		fmt.Println(strings.Join(in.Interests, ", "))
	case "set":
		if len(args) < 2 {
			usage("interests set <a,b,...>")
		}
		var picked []string
		for _, s := range strings.Split(args[1], ",") {
			if s = strings.TrimSpace(s); s != "" {
				picked = append(picked, s)
			}
		}
		if err := l.events.SaveInterests(ctx, uid, picked); err != nil {
			fail(err)
		}
		fmt.Printf("Saved %d interest(s).\n", len(picked))
	default:
		fmt.Fprintf(os.Stderr, "unknown interests subcommand: %s\n", args[0])
		os.Exit(1)
	}
}
