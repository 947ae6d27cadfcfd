// ABOUTME: Terminal client for a feynomenon-gateway tutoring session over HTTP.
// ABOUTME: Creates a session, then loops user turns until the session completes.

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
)

// chatRequest is the JSON body sent to POST /api/chat.
type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// chatResponse is the JSON response from the chat and session endpoints.
type chatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	Phase     string `json:"phase"`
	Topic     string `json:"topic,omitempty"`
	TurnCount int    `json:"turn_count"`
}

// errorResponse is the gateway's error envelope.
type errorResponse struct {
	Error struct {
		Kind      string `json:"kind"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "Gateway server URL")
	sessionID := flag.String("session", "", "Resume an existing session by ID")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *server, *sessionID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, server, sessionID string) error {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	fmt.Printf("feynomenon connected to %s\n", server)
	fmt.Println("Type a message and press Enter. Say quit, exit, or stop to finish. Ctrl+C to leave.")
	fmt.Println()

	if sessionID == "" {
		resp, err := createSession(ctx, server)
		if err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		sessionID = resp.SessionID
		gray.Printf("[session %s]\n", sessionID)
		cyan.Printf("tutor: %s\n\n", resp.Reply)
	} else {
		gray.Printf("[resuming session %s]\n\n", sessionID)
	}

	scanner := bufio.NewScanner(os.Stdin)
	lastPhase := ""

	for {
		fmt.Print("you> ")

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

		resp, err := sendTurn(ctx, server, sessionID, input)
		if err != nil {
			color.Red("[error] %v", err)
			fmt.Println()
			continue
		}

		if resp.Phase == "feynman_tutoring" && lastPhase != resp.Phase && resp.Topic != "" {
			gray.Printf("[topic identified: %s]\n", resp.Topic)
		}
		lastPhase = resp.Phase

		cyan.Printf("tutor: %s\n\n", resp.Reply)

		if resp.Phase == "completed" {
			gray.Printf("[session complete after %d turns]\n", resp.TurnCount)
			return nil
		}
	}
}

// createSession starts a new session and returns the greeting.
func createSession(ctx context.Context, server string) (*chatResponse, error) {
	url := fmt.Sprintf("%s/api/sessions", server)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, decodeError(resp)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &out, nil
}

// sendTurn posts one user message and returns the tutor's reply.
func sendTurn(ctx context.Context, server, sessionID, message string) (*chatResponse, error) {
	bodyBytes, err := json.Marshal(chatRequest{SessionID: sessionID, Message: message})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", server)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &out, nil
}

// decodeError turns an error response into something readable, falling back
// to the bare status when the body is not the expected envelope.
func decodeError(resp *http.Response) error {
	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Retryable {
			return fmt.Errorf("%s (try again)", errResp.Error.Message)
		}
		return fmt.Errorf("%s", errResp.Error.Message)
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}
