// Package notify delivers out-of-band messages to the human approver.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"
)

// ApprovalSubject is the subject line of approval requests
const ApprovalSubject = "Approve satellite update"

// Message is a plain-text notification
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Notifier sends a message through some channel
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// ApprovalMessage builds the approval request sent to recipients
func ApprovalMessage(link string, expiresAt time.Time, to ...string) Message {
	return Message{
		To:      to,
		Subject: ApprovalSubject,
		Body: fmt.Sprintf("Click to approve the update:\n\n%s\n\nThe link expires at %s.\n\nIgnore if unexpected.",
			link, expiresAt.UTC().Format(time.RFC1123)),
	}
}

// BuildRFC822 renders msg as a MIME message
func BuildRFC822(from string, msg Message) ([]byte, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("message has no recipients")
	}

	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}

	to := make([]string, 0, len(msg.To))
	for _, raw := range msg.To {
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid recipient %q: %w", raw, err)
		}
		to = append(to, addr.String())
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", fromAddr.String())
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return buf.Bytes(), nil
}
