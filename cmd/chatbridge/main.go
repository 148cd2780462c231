// ABOUTME: Interactive terminal client for a streaming conversational agent.
// ABOUTME: Wires config, local history, the HTTP upstream, and the bridge connection.

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/chatbridge/internal/activity"
	"github.com/2389/chatbridge/internal/attachment"
	"github.com/2389/chatbridge/internal/bridge"
	"github.com/2389/chatbridge/internal/config"
	"github.com/2389/chatbridge/internal/history"
	"github.com/2389/chatbridge/internal/upstream"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	serverURL := flag.String("server", "", "Upstream service URL (overrides config)")
	conversationID := flag.String("conversation", "", "Conversation ID to resume (overrides config)")
	showTyping := flag.Bool("typing", false, "Show typing indicators")
	historyPath := flag.String("history", "", "Path to local history database (overrides config)")
	flag.Parse()

	cfg, err := resolveConfig(*configPath, *serverURL, *conversationID, *showTyping, *historyPath)
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

// resolveConfig merges the optional config file with flag overrides.
func resolveConfig(path, serverURL, conversationID string, showTyping bool, historyPath string) (*config.Config, error) {
	cfg := &config.Config{}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if conversationID != "" {
		cfg.Conversation.ID = conversationID
	}
	if showTyping {
		cfg.Conversation.ShowTyping = true
	}
	if historyPath != "" {
		cfg.History.Path = historyPath
	}
	if cfg.Server.Token == "" {
		cfg.Server.Token = os.Getenv("CHATBRIDGE_TOKEN")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var store *history.SQLiteStore
	if cfg.History.Path != "" {
		s, err := history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("opening history store: %w", err)
		}
		defer s.Close()
		store = s
	}

	client := upstream.NewHTTPClient(cfg.Server.URL, cfg.Server.Token, logger)

	opts := bridge.Options{
		ConversationID:    cfg.Conversation.ID,
		StartConversation: cfg.Conversation.Start,
		ShowTyping:        cfg.Conversation.ShowTyping,
		Attachments:       attachment.NewNormalizer(fileByteSource{}, logger),
		Logger:            logger,
	}
	if store != nil {
		opts.FetchHistory = func(ctx context.Context, id string) ([]*activity.Activity, error) {
			return store.Fetch(ctx, id)
		}
	}

	conn := bridge.New(client, opts)
	defer conn.End()

	feed := conn.Subscribe(ctx)

	// Render the feed and persist observed activities until the feed
	// completes.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		renderFeed(ctx, feed, conn, store)
	}()

	fmt.Printf("chatbridge connected to %s\n", cfg.Server.URL)
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	err := inputLoop(ctx, conn, store)
	conn.End()
	wg.Wait()
	return err
}

// renderFeed prints incoming activities and saves them to the history store.
func renderFeed(ctx context.Context, feed <-chan bridge.Event, conn *bridge.Connection, store *history.SQLiteStore) {
	agentStyle := color.New(color.FgGreen)
	typingStyle := color.New(color.Faint)
	userStyle := color.New(color.FgCyan)

	for ev := range feed {
		if ev.Err != nil {
			color.Red("conversation failed: %v", ev.Err)
			return
		}
		a := ev.Activity

		switch a.Type {
		case activity.TypeTyping:
			name := "Agent"
			if a.From != nil && a.From.Name != "" {
				name = a.From.Name
			}
			typingStyle.Printf("%s is typing...\n", name)
		case activity.TypeMessage:
			if a.From != nil && a.From.ID != "" {
				name := a.From.Name
				if name == "" {
					name = a.From.ID
				}
				agentStyle.Printf("%s: ", name)
				fmt.Println(a.Text)
			} else {
				userStyle.Printf("you: ")
				fmt.Println(a.Text)
			}
		default:
			typingStyle.Printf("[%s]\n", a.Type)
		}

		// History persistence is the consumer's job: the adapter only
		// replays what is saved here.
		if store != nil && a.Type != activity.TypeTyping {
			if id := conn.ConversationID(); id != "" {
				if err := store.Save(ctx, id, a); err != nil {
					slog.Warn("failed to save activity", "error", err)
				}
			}
		}
	}
}

// inputLoop reads user input and dispatches commands and messages.
func inputLoop(ctx context.Context, conn *bridge.Connection, store *history.SQLiteStore) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else if err := scanner.Err(); err != nil {
				errCh <- err
			} else {
				errCh <- io.EOF
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		switch {
		case input == "/quit" || input == "/exit" || input == "/q":
			return nil

		case input == "/help":
			printHelp()
			continue

		case input == "/id":
			if id := conn.ConversationID(); id != "" {
				fmt.Printf("conversation: %s\n", id)
			} else {
				fmt.Println("no conversation id assigned yet")
			}
			continue

		case input == "/clear":
			if store == nil {
				fmt.Println("no history store configured")
			} else if id := conn.ConversationID(); id == "" {
				fmt.Println("no conversation to clear")
			} else if err := store.Clear(ctx, id); err != nil {
				color.Red("clear failed: %v", err)
			} else {
				fmt.Println("history cleared")
			}
			continue

		case strings.HasPrefix(input, "/export"):
			path := strings.TrimSpace(strings.TrimPrefix(input, "/export"))
			if err := exportTranscript(ctx, conn, store, path); err != nil {
				color.Red("export failed: %v", err)
			}
			continue
		}

		_, done, err := conn.PostActivity(ctx, &activity.Activity{
			Type: activity.TypeMessage,
			Text: input,
			From: &activity.ChannelAccount{Name: "you"},
		})
		if err != nil {
			color.Red("send failed: %v", err)
			continue
		}

		// Surface send failures without blocking the input loop.
		go func() {
			if err := <-done; err != nil {
				color.Red("response stream failed: %v", err)
			}
		}()
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /id             Show the current conversation id")
	fmt.Println("  /clear          Delete stored history for this conversation")
	fmt.Println("  /export <file>  Write an HTML transcript of stored history")
	fmt.Println("  /help           Show this help")
	fmt.Println("  /quit           Exit")
}

// fileByteSource resolves file: attachment references from the local disk.
type fileByteSource struct{}

func (fileByteSource) Fetch(_ context.Context, url string) ([]byte, string, error) {
	path, ok := strings.CutPrefix(url, "file://")
	if !ok {
		return nil, "", fmt.Errorf("unsupported attachment reference: %s", url)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return data, "", nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
