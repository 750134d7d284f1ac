// ABOUTME: Terminal chat client for relay-gateway.
// ABOUTME: Streams agent replies over a WebSocket session with reconnect.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/relay-gateway/internal/client"
	"github.com/2389/relay-gateway/internal/config"
	"github.com/2389/relay-gateway/internal/event"
)

// getConfigPath returns the path to the gateway config file, shared with
// relay-gateway so one file configures both binaries.
func getConfigPath() string {
	if envPath := os.Getenv("RELAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "relay", "gateway.yaml")
}

// getToken returns the JWT token from RELAY_TOKEN env var or ~/.config/relay/token file
func getToken() string {
	if token := os.Getenv("RELAY_TOKEN"); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	tokenPath := filepath.Join(configDir, "relay", "token")
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}

func main() {
	server := flag.String("server", "", "Gateway WebSocket URL (default from config, else ws://localhost:8080/ws)")
	agent := flag.String("agent", "", "Agent name (empty uses the gateway default)")
	user := flag.String("user", "", "User identifier sent with messages")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Config is optional for the chat client; flags win over file values.
	var clientCfg config.ClientConfig
	if cfg, err := config.Load(getConfigPath()); err == nil {
		clientCfg = cfg.Client
	}
	if *server == "" {
		*server = clientCfg.URL
	}
	if *server == "" {
		*server = "ws://localhost:8080/ws"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, clientCfg, *server, *agent, *user, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, clientCfg config.ClientConfig, server, agent, user string, verbose bool) error {
	gray := color.New(color.FgHiBlack)
	red := color.New(color.FgRed)
	cyan := color.New(color.FgCyan)

	logHandler := slog.NewTextHandler(io.Discard, nil)
	if verbose {
		logHandler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	}

	// done receives one value per terminal event so the prompt loop can
	// wait for the reply to finish.
	done := make(chan struct{}, 1)
	streamed := false

	token := getToken()
	if token == "" {
		token = clientCfg.Token
	}

	session := client.New(client.Config{
		URL:               server,
		Token:             token,
		AgentName:         agent,
		UserID:            user,
		ReconnectInterval: clientCfg.ReconnectInterval,
		OnEvent: func(ev event.Event) {
			switch ev.Type {
			case event.TypeStatus:
				gray.Printf("[%s]\n", ev.Status)
			case event.TypeChunk:
				fmt.Print(ev.Text)
				streamed = true
			case event.TypeComplete:
				if !streamed {
					fmt.Print(ev.FullText)
				}
				fmt.Println()
				done <- struct{}{}
			case event.TypeError:
				if streamed {
					fmt.Println()
				}
				red.Printf("[error] %s\n", ev.Message)
				done <- struct{}{}
			}
		},
		OnStateChange: func(s client.State) {
			switch s {
			case client.StateConnecting:
				gray.Println("[reconnecting...]")
			case client.StateConnected:
				gray.Println("[connected]")
			}
		},
		Logger: slog.New(logHandler),
	})

	if err := session.Connect(ctx); err != nil {
		return err
	}
	defer session.Close()

	fmt.Printf("relay-chat connected to %s\n", server)
	if agent != "" {
		cyan.Printf("Agent: %s\n", agent)
	}
	if token != "" {
		fmt.Println("Auth: JWT token configured")
	} else {
		fmt.Println("Auth: none (set RELAY_TOKEN for authentication)")
	}
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if input == "/help" {
			printHelp()
			fmt.Println()
			continue
		}

		if input == "/session" {
			fmt.Printf("Session: %s (%s)\n\n", session.SessionID(), session.State())
			continue
		}

		streamed = false
		if err := session.Send(input); err != nil {
			red.Printf("[error] %v\n\n", err)
			continue
		}

		// Wait for the reply's terminal event before prompting again.
		select {
		case <-ctx.Done():
			return nil
		case <-done:
		}
		fmt.Println()
	}
}

// printHelp displays available commands.
func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /session    Show session ID and connection state")
	fmt.Println("  /help       Show this help")
	fmt.Println("  /quit       Exit the chat")
}
