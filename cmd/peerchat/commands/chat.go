package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"peerchat/internal/session"
)

// runChat reads stdin lines until /quit or Ctrl-C. Slash commands map to
// core operations; every other line is sent as a message.
func runChat(o *session.Orchestrator) error {
	o.OnMessage(func(text string) {
		fmt.Printf("> %s\n", text)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Println("Type a message, or /share /connect <descriptor> /status /quit.")
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nshutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == "/quit":
				return nil
			case line == "/share":
				token, err := o.Share()
				if err != nil {
					fmt.Println("share:", err)
					continue
				}
				fmt.Println(token)
			case line == "/status":
				st := o.Status()
				fmt.Printf("listening=%t connections=%d handshake=%t ready=%t peer=%t\n",
					st.Listening, st.ConnectionCount, st.HandshakeComplete, st.Ready, st.HasActivePeer)
			case strings.HasPrefix(line, "/connect "):
				token := strings.TrimSpace(strings.TrimPrefix(line, "/connect "))
				if err := o.Connect(token); err != nil {
					fmt.Println("connect:", err)
					continue
				}
				fmt.Println("handshake sent")
			default:
				if !o.Send(line) {
					fmt.Println("send failed: no established session")
				}
			}
		}
	}
}
