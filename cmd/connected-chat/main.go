package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"connected/internal/chat"
	"connected/internal/logging"
	"connected/pkg/client"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	flags := flag.NewFlagSet("connected-chat", flag.ContinueOnError)
	baseURL := flags.String("url", "http://localhost:8080", "service base URL")
	email := flags.String("email", "", "your email")
	with := flags.String("with", "", "email of the person to chat with")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *email == "" || *with == "" {
		flags.Usage()
		return errors.New("-email and -with are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := client.New(*baseURL)
	if err != nil {
		return err
	}

	input := bufio.NewScanner(os.Stdin)
	prompt := &terminalPrompt{in: input, out: os.Stdout}
	if err := signIn(ctx, c, *email, prompt); err != nil {
		return err
	}

	conversation, err := c.OpenConversation(ctx, *with)
	if err != nil {
		return fmt.Errorf("failed to open conversation: %w", err)
	}

	printer := newPrinter(os.Stdout, *email)
	controller := chat.NewController(c, conversation.ID, *email,
		chat.WithListener(printer.render), chat.WithLogger(logging.Discard()))
	if err := controller.Open(ctx); err != nil {
		return err
	}
	defer func() { _ = controller.Close() }()

	fmt.Printf("Chatting with %s. Type a message and press enter, Ctrl-D to quit.\n", *with)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for input.Scan() {
			lines <- input.Text()
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
			if strings.TrimSpace(line) == "" {
				continue
			}
			controller.SetDraft(line)
			if err := controller.Send(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			}
		}
	}
}

// terminalPrompt reads answers from the terminal, passwords without echo
type terminalPrompt struct {
	in  *bufio.Scanner
	out io.Writer
}

func (p *terminalPrompt) Line(question string) (string, error) {
	fmt.Fprint(p.out, question)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}

func (p *terminalPrompt) Say(message string) {
	fmt.Fprintln(p.out, message)
}

func (p *terminalPrompt) Password(question string) (string, error) {
	fmt.Fprint(p.out, question)
	pwd, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
