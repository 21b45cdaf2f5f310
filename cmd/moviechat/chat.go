package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"moviechat/internal/app/chat"
	"moviechat/internal/app/movie"
	"moviechat/internal/app/realtime"
	"moviechat/internal/app/user"
)

const chatHelp = `commands:
  /dm <name>                 talk to a contact
  /room <name>               switch to one of your rooms
  /create <name> <member>... create a room with the given contacts
  /leave                     leave the active room
  /clear                     close the active conversation
  /rooms                     list your rooms
  /contacts [query]          list contacts, optionally filtered
  /online                    list who is online
  /history                   print the active conversation
  /quit                      exit
anything else is sent to the active conversation`

// console serializes writes from the session loop and the prompt.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) Notify(n chat.Notice) {
	c.printf("* %s\n", n.Message)
}

func (a *app) newSession(notify chat.Notifier) *chat.Session {
	return chat.NewSession(chat.Options{
		Transport: realtime.Options{
			PublicURL: a.cfg.PublicSocketURL(),
			ChatURL:   a.cfg.ChatSocketURL(),
			Retry:     realtime.RetryPolicy{Attempts: a.cfg.ReconnectAttempts, Delay: a.cfg.ReconnectDelay},
		},
		PresenceInterval: a.cfg.PresenceInterval,
	}, a.client, a.store, notify)
}

func chatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.signIn(ctx); err != nil {
				return err
			}
			defer a.service.Close()

			out := &console{out: cmd.OutOrStdout()}
			session := a.newSession(out)
			if err := session.Start(ctx); err != nil {
				return err
			}
			defer session.Close()

			stop, err := printIncoming(session, out)
			if err != nil {
				return err
			}
			defer stop()

			out.printf("%s\n", chatHelp)
			return repl(ctx, session, cmd.InOrStdin(), out)
		},
	}
}

// printIncoming echoes live messages and newly added movies.
func printIncoming(session *chat.Session, out *console) (stop func(), err error) {
	var subs []*realtime.Subscription
	stop = func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}

	printMessage := func(m chat.Message) {
		out.printf("[%s] %s: %s\n", m.CreatedAt.Local().Format(time.Kitchen), m.Sender.Name, m.Message)
	}

	for _, event := range []realtime.Event{realtime.EventNewMessage, realtime.EventNewRoomMessage, realtime.EventMessageSent} {
		sub, err := realtime.On(session.Bus(), realtime.Chat, event, printMessage)
		if err != nil {
			stop()
			return nil, err
		}
		subs = append(subs, sub)
	}

	stopFeed, err := movie.Watch(session.Bus(), movie.Handlers{
		OnAdded: func(m movie.Movie) {
			out.printf("* new movie: %s (%s)\n", m.Title, m.ReleaseDate)
		},
	})
	if err != nil {
		stop()
		return nil, err
	}

	return func() {
		stop()
		stopFeed()
	}, nil
}

func repl(ctx context.Context, session *chat.Session, in io.Reader, out *console) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := runLine(ctx, session, strings.TrimSpace(line), out)
			if err != nil {
				out.printf("! %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func runLine(ctx context.Context, session *chat.Session, line string, out *console) (quit bool, err error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, session.Send(ctx, line)
	}

	fields := strings.Fields(line)
	args := fields[1:]

	switch fields[0] {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		out.printf("%s\n", chatHelp)

	case "/dm":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: /dm <name>")
		}
		peer, err := findContact(ctx, session, strings.Join(args, " "))
		if err != nil {
			return false, err
		}
		out.printf("talking to %s\n", peer.Name)
		return false, session.SelectDirectPeer(ctx, peer.ID)

	case "/room":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: /room <name>")
		}
		room, err := findRoom(ctx, session, strings.Join(args, " "))
		if err != nil {
			return false, err
		}
		out.printf("joining %s\n", room.Name)
		return false, session.SelectRoom(ctx, room.ID)

	case "/create":
		if len(args) < 2 {
			return false, fmt.Errorf("usage: /create <name> <member>...")
		}
		req := chat.CreateRoomRequest{Name: args[0]}
		for _, q := range args[1:] {
			member, err := findContact(ctx, session, q)
			if err != nil {
				return false, err
			}
			req.Members = append(req.Members, member.ID)
		}
		return false, session.CreateRoom(ctx, req)

	case "/leave":
		v, err := session.View(ctx)
		if err != nil {
			return false, err
		}
		if v.Active.Kind != chat.RoomConversation {
			return false, fmt.Errorf("no room is active")
		}
		return false, session.LeaveRoom(ctx, v.Active.RoomID)

	case "/clear":
		return false, session.ClearConversation(ctx)

	case "/rooms":
		if err := session.RefreshRooms(ctx); err != nil {
			return false, err
		}
		v, err := session.View(ctx)
		if err != nil {
			return false, err
		}
		for _, r := range v.Rooms {
			online, _ := session.OnlineMembers(ctx, r.ID)
			out.printf("  %s  %d members, %d online\n", r.Name, len(r.Members), len(online))
		}

	case "/contacts":
		contacts, err := session.Contacts(ctx, strings.Join(args, " "))
		if err != nil {
			return false, err
		}
		for _, u := range contacts {
			out.printf("  %s <%s>\n", u.Name, u.Email)
		}

	case "/online":
		if err := session.RequestPresence(ctx); err != nil {
			return false, err
		}
		v, err := session.View(ctx)
		if err != nil {
			return false, err
		}
		names := make(map[string]string, len(v.Contacts))
		for _, u := range v.Contacts {
			names[u.ID] = u.Name
		}
		for _, id := range v.Online {
			if name, ok := names[id]; ok {
				out.printf("  %s\n", name)
			}
		}

	case "/history":
		v, err := session.View(ctx)
		if err != nil {
			return false, err
		}
		if v.Loading {
			out.printf("loading %s...\n", v.Active)
		}
		for _, m := range v.Messages {
			out.printf("[%s] %s: %s\n", m.CreatedAt.Local().Format(time.Kitchen), m.Sender.Name, m.Message)
		}

	default:
		return false, fmt.Errorf("unknown command %s, try /help", fields[0])
	}

	return false, nil
}

func findContact(ctx context.Context, session *chat.Session, query string) (user.User, error) {
	contacts, err := session.Contacts(ctx, query)
	if err != nil {
		return user.User{}, err
	}
	switch len(contacts) {
	case 0:
		return user.User{}, fmt.Errorf("no contact matches %q", query)
	case 1:
		return contacts[0], nil
	}
	for _, u := range contacts {
		if strings.EqualFold(u.Name, query) {
			return u, nil
		}
	}
	return user.User{}, fmt.Errorf("%q matches %d contacts", query, len(contacts))
}

func findRoom(ctx context.Context, session *chat.Session, query string) (chat.Room, error) {
	v, err := session.View(ctx)
	if err != nil {
		return chat.Room{}, err
	}
	for _, r := range v.Rooms {
		if r.ID == query || strings.EqualFold(r.Name, query) {
			return r, nil
		}
	}
	return chat.Room{}, fmt.Errorf("you are not a member of a room called %q", query)
}
