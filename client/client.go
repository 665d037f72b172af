package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"

	"support-hub/domain"
	"support-hub/infrastructure/ws"
	"support-hub/internal"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"HUB_ADDR,default=localhost:3000"`
	Identity      string `env:"HUB_IDENTITY,required=true"`
	Role          string `env:"HUB_ROLE,default=user"`
	RecipientID   string `env:"HUB_RECIPIENT"`
	LogLevel      string `env:"LOG_LEVEL,default=info"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v", err)
	}
	os.Exit(code)
}

// run handles the realtime client lifecycle: configuration loading, the
// websocket connection and the send/receive loops.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	role := domain.Role(config.Role)
	if !role.Valid() {
		return exitConfig, fmt.Errorf("invalid role %q", config.Role)
	}

	log := internal.LoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Establish the realtime connection and register.
	url := "ws://" + config.ServerAddress + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	if err := conn.WriteJSON(ws.Command{
		Type:     ws.CommandRegister,
		Identity: config.Identity,
		Role:     role,
	}); err != nil {
		return exitRuntime, fmt.Errorf("registration failed: %w", err)
	}

	log.Info(">>> Connected! Type a line to send it, Ctrl+C to quit",
		"server", config.ServerAddress,
		"identity", config.Identity,
		"role", string(role))

	// 4. Stdin loop: every line becomes a chat message.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			body := scanner.Text()
			if body == "" {
				continue
			}
			if err := conn.WriteJSON(ws.Command{
				Type:        ws.CommandSendMessage,
				Message:     body,
				RecipientID: config.RecipientID,
			}); err != nil {
				log.Error("Send failed", "error", err)
				return
			}
		}
	}()

	// Unblock the read loop when a signal lands.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	// 5. Frame reception loop.
	// This loop runs until the context is canceled or the server closes the connection.
	for {
		var frame domain.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			// Normal exit if the user triggered a shutdown.
			if ctx.Err() != nil {
				log.Info("Stopping client...")
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("connection error: %w", err)
		}
		display(frame)
	}
}

// display renders one inbound frame on the terminal.
func display(frame domain.Frame) {
	switch frame.Type {
	case domain.FrameNewMessage:
		if frame.Message == nil {
			return
		}
		color.Cyan.Printf("[%s] %s: %s\n",
			frame.Message.SentAt.Format(time.TimeOnly),
			frame.Message.SenderID,
			frame.Message.Body)
	case domain.FrameNotification:
		if frame.Notification == nil {
			return
		}
		color.Green.Printf("*** %s: %s\n", frame.Notification.Title, frame.Notification.Message)
	case domain.FrameChatHistory:
		for _, entry := range frame.History {
			display(domain.FrameFor(entry))
		}
	case domain.FrameTypingStart:
		if frame.Typing != nil {
			color.Gray.Printf("... %s is typing\n", frame.Typing.Identity)
		}
	case domain.FrameError:
		color.Red.Printf("!!! %s\n", frame.Error)
	}
}
