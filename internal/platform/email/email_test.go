package email

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"leaveflow/internal/platform/config"
)

func TestBuildMessage(t *testing.T) {
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	msg, err := buildMessage("Leaveflow <no-reply@example.com>", "ana@example.com", "Hi\r\nBcc: x@y", "body", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := string(msg)
	if !strings.Contains(text, "Subject: Hi  Bcc: x@y\r\n") {
		t.Fatalf("subject must not inject headers: %q", text)
	}
	if !strings.Contains(text, "To: <ana@example.com>\r\n") {
		t.Fatalf("unexpected recipient header: %q", text)
	}
	if !strings.HasSuffix(text, "\r\n\r\nbody") {
		t.Fatalf("body must follow a blank line: %q", text)
	}

	if _, err := buildMessage("no-reply@example.com", "not an address", "s", "b", now); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
}

func TestNewDisabled(t *testing.T) {
	m := New(config.Config{EmailEnabled: false, SMTPHost: "smtp.example.com"})
	if _, ok := m.(logMailer); !ok {
		t.Fatalf("expected log mailer, got %T", m)
	}
	if err := m.Send(context.Background(), "a@example.com", "b@example.com", "s", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m = New(config.Config{EmailEnabled: true, SMTPHost: "smtp.example.com", SMTPPort: 25})
	if _, ok := m.(*SMTPMailer); !ok {
		t.Fatalf("expected smtp mailer, got %T", m)
	}
}

func TestBareAddress(t *testing.T) {
	if got := bareAddress("Ana <ana@example.com>"); got != "ana@example.com" {
		t.Fatalf("unexpected address %q", got)
	}
}

func TestSendStalledServerTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	// Accept and never send the SMTP greeting.
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	m := &SMTPMailer{Host: "127.0.0.1", Port: addr.Port, Timeout: 200 * time.Millisecond}
	done := make(chan error, 1)
	go func() {
		done <- m.Send(context.Background(), "no-reply@example.com", "ana@example.com", "s", "b")
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected a timeout error from a silent server")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("send did not honour its timeout without a context deadline")
	}
}
