package mail

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPProvider_Build(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.example.com", Port: 587, From: "watch@example.com"})
	p.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }

	raw, err := p.build(Message{
		To:       []string{"a@example.com", "b@example.com"},
		Subject:  "Usage alert",
		TextBody: "plain body",
		HTMLBody: "<p>html body</p>",
	})
	require.NoError(t, err)

	s := string(raw)
	assert.Contains(t, s, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, s, "Subject: Usage alert\r\n")
	assert.Contains(t, s, "Content-Type: multipart/alternative;")
	assert.Contains(t, s, "plain body")
	assert.Contains(t, s, "<p>html body</p>")
	assert.Less(t, strings.Index(s, "plain body"), strings.Index(s, "<p>html body</p>"))
}

func TestSMTPProvider_RequiresRecipients(t *testing.T) {
	p := NewSMTP(Config{Host: "127.0.0.1", Port: 1})
	err := p.Send(context.Background(), Message{Subject: "x"})
	assert.Error(t, err)
}

func TestLogProvider_NeverFails(t *testing.T) {
	p := NewLogProvider(nil)
	assert.NoError(t, p.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "x"}))
}
