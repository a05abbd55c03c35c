package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltmpl "html/template"
	texttmpl "text/template"
	"time"
)

//go:embed templates/*
var templateFiles embed.FS

var (
	textTemplates = texttmpl.Must(texttmpl.ParseFS(templateFiles, "templates/*.txt"))
	htmlTemplates = htmltmpl.Must(htmltmpl.ParseFS(templateFiles, "templates/*.gohtml"))
)

// ErrNoRecipient is returned for messages without a To address
var ErrNoRecipient = errors.New("mail message has no recipient")

// Message is one outbound email
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers messages
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type linkData struct {
	Link      string
	ExpiresIn string
}

// SignInLink renders the one-time sign-in email
func SignInLink(to, link string, ttl time.Duration) (Message, error) {
	data := linkData{Link: link, ExpiresIn: humanDuration(ttl)}

	var text bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&text, "signin_link.txt", data); err != nil {
		return Message{}, fmt.Errorf("failed to render text template: %w", err)
	}
	var html bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, "signin_link.gohtml", data); err != nil {
		return Message{}, fmt.Errorf("failed to render html template: %w", err)
	}

	return Message{
		To:      to,
		Subject: "Your ConnectED sign-in link",
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		if d == time.Minute {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}
