package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/cyvasse-online/server/internal/logging"
	"github.com/cyvasse-online/server/pkg/client"
	"github.com/cyvasse-online/server/pkg/domain"
	"github.com/cyvasse-online/server/pkg/transport/protocol"
)

func main() {
	var (
		serverAddr = flag.String("server", "ws://localhost:2516/", "match server URL")
		logLevel   = flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  *logLevel,
		Format: "text",
	})

	serverURL, err := url.Parse(*serverAddr)
	if err != nil {
		log.Fatalf("invalid server URL: %v", err)
	}

	options := client.DefaultOptions()
	options.Logger = logger

	c := client.New(*serverURL, options)
	if err := c.Connect(context.Background()); err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer c.Close()

	setupHandlers(c)
	runInteractiveMode(c)
}

func setupHandlers(c *client.Client) {
	c.OnNotification(protocol.NotificationUserJoined, func(data map[string]json.RawMessage) {
		fmt.Printf("* %s joined\n", str(data["username"]))
	})
	c.OnNotification(protocol.NotificationUserLeft, func(data map[string]json.RawMessage) {
		fmt.Printf("* %s left\n", str(data["username"]))
	})
	c.OnNotification(protocol.NotificationCommError, func(data map[string]json.RawMessage) {
		fmt.Printf("! server: %s\n", str(data["errMsg"]))
	})
	c.OnNotification(protocol.NotificationListUpdate, func(data map[string]json.RawMessage) {
		var games map[string]protocol.ListEntry
		_ = json.Unmarshal(data["games"], &games)
		fmt.Printf("* %s (%d):\n", str(data["list"]), len(games))
		for id, g := range games {
			fmt.Printf("    %s  %s %s\n", id, g.Title, g.Color)
		}
	})
	c.OnRelay(func(msgType protocol.MsgType, raw []byte) {
		if msgType != protocol.MsgTypeChatMsg {
			fmt.Printf("* %s: %s\n", msgType, raw)
			return
		}
		var msg struct {
			MsgData struct {
				User    string `json:"user"`
				Message string `json:"message"`
			} `json:"msgData"`
		}
		_ = json.Unmarshal(raw, &msg)
		fmt.Printf("<%s> %s\n", msg.MsgData.User, msg.MsgData.Message)
	})
}

func runInteractiveMode(c *client.Client) {
	fmt.Println("=== Cyvasse client ===")
	fmt.Println("Commands:")
	fmt.Println("  create <white|black> [random] [public]")
	fmt.Println("  join <match_id>")
	fmt.Println("  resume <player_id>")
	fmt.Println("  name <username>")
	fmt.Println("  say <message>")
	fmt.Println("  watch <list>...     - subscribe to discovery lists")
	fmt.Println("  unwatch <list>...")
	fmt.Println("  quit")

	ctx := context.Background()
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		var input string
		select {
		case <-c.Done():
			fmt.Println("\nconnection closed")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			input = strings.TrimSpace(line)
		}

		parts := strings.Fields(input)
		if len(parts) == 0 {
			continue
		}

		command, args := parts[0], parts[1:]
		if command == "quit" {
			fmt.Println("Goodbye!")
			return
		}
		if err := runCommand(ctx, c, command, args); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func runCommand(ctx context.Context, c *client.Client, command string, args []string) error {
	switch command {
	case "create":
		if len(args) < 1 {
			return fmt.Errorf("usage: create <white|black> [random] [public]")
		}
		color, err := domain.ParseColor(args[0])
		if err != nil {
			return err
		}
		opts := client.GameOptions{Color: color}
		for _, opt := range args[1:] {
			switch opt {
			case "random":
				opts.Random = true
			case "public":
				opts.Public = true
			}
		}
		game, err := c.CreateGame(ctx, opts)
		if err != nil {
			return err
		}
		fmt.Printf("match %s created, your player id is %s\n", game.MatchID, game.PlayerID)

	case "join", "resume":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <id>", command)
		}
		join := c.JoinGame
		if command == "resume" {
			join = c.ResumeGame
		}
		game, err := join(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("playing %s in match %s, your player id is %s\n", game.Color, game.MatchID, game.PlayerID)

	case "name":
		name, err := c.SetUsername(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Printf("you are now %s\n", name)

	case "say":
		return c.SendChat(ctx, strings.Join(args, " "))

	case "watch", "unwatch":
		lists := make([]protocol.ListName, 0, len(args))
		for _, a := range args {
			lists = append(lists, protocol.ListName(a))
		}
		update := c.Subscribe
		if command == "unwatch" {
			update = c.Unsubscribe
		}
		accepted, err := update(ctx, lists...)
		fmt.Printf("%sing %v\n", command, accepted)
		return err

	default:
		return fmt.Errorf("unknown command: %s", command)
	}
	return nil
}

func str(raw json.RawMessage) string {
	var s string
	_ = json.Unmarshal(raw, &s)
	return s
}
