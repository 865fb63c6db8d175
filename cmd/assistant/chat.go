package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"connectrpc.com/connect"

	"github.com/durable-agents/assistant/gateway"
	"github.com/durable-agents/assistant/step"
)

const pollInterval = 300 * time.Millisecond

func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	var (
		addr    = fs.String("addr", "localhost:8089", "Address of a running assistant service")
		session = fs.String("session", "", "Session id to resume (default: start a new session)")
		timeout = fs.Duration("timeout", 2*time.Minute, "How long to wait for each response")
	)
	fs.Parse(args)

	ctx := context.Background()
	client := gateway.NewClient(http.DefaultClient, "http://"+*addr)

	id, err := client.StartSession(ctx, *session)
	if err != nil {
		var cerr *connect.Error
		if *session != "" && errors.As(err, &cerr) && cerr.Code() == connect.CodeAlreadyExists {
			// The session is already running server-side; attach to it.
			id = *session
		} else {
			log.Fatalf("Failed to start session: %v", err)
		}
	}
	fmt.Printf("session %s (type 'exit' to close)\n", id)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		if err := chatTurn(ctx, client, id, line, *timeout); err != nil {
			log.Fatalf("Turn failed: %v", err)
		}
	}

	if err := client.CloseSession(ctx, id); err != nil {
		// The session may already have terminated and been destroyed.
		if connect.CodeOf(err) != connect.CodeNotFound {
			log.Fatalf("Failed to close session: %v", err)
		}
	}
	fmt.Println("session closed")
}

// chatTurn submits one message and polls until a new turn completes.
func chatTurn(ctx context.Context, client *gateway.Client, id, text string, timeout time.Duration) error {
	before, err := client.LatestResponse(ctx, id)
	if err != nil {
		return err
	}

	if err := client.SubmitMessage(ctx, id, text); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		time.Sleep(pollInterval)
		resp, err := client.LatestResponse(ctx, id)
		if err != nil {
			return err
		}
		if resp.Valid && resp.TurnIndex > before.TurnIndex {
			fmt.Println(step.StripMarker(resp.Text, nil))
			return nil
		}
	}
	return fmt.Errorf("no response within %s", timeout)
}
