package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/gameresult-crawler/internal/extract"
	"github.com/JakeFAU/gameresult-crawler/internal/game"
)

// Kind separates result announcements from operational messages.
type Kind string

// Message kinds.
const (
	KindResult Kind = "result"
	KindSystem Kind = "system"
)

// Severity grades system messages.
type Severity string

// Severities.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityTest    Severity = "test"
)

// Channel is one notification transport.
type Channel interface {
	Name() string
	// Configured reports whether the channel has enough settings to send.
	Configured() bool
	Send(ctx context.Context, msg Message) error
}

// Message is what every channel receives. Text is Markdown; channels that
// cannot render it use PlainText.
type Message struct {
	Kind      Kind            `json:"kind"`
	Subject   string          `json:"subject"`
	Text      string          `json:"text"`
	Severity  Severity        `json:"severity,omitempty"`
	Body      string          `json:"body,omitempty"`
	GameType  game.Type       `json:"game_type,omitempty"`
	Result    *game.Candidate `json:"result,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Job is a confirmed result waiting to be delivered.
type Job struct {
	GameType    game.Type
	Result      game.Candidate
	Fingerprint string
	Channels    []string
}

// TestBody is the body of the configuration test notification.
const TestBody = "🧪 **Test Notification**\n\n" +
	"This is a test message to verify notification configuration.\n\n" +
	"✅ If you receive this message, notifications are working correctly!"

// FormatResult renders the announcement for a new result.
func FormatResult(def game.Definition, c game.Candidate, apiPrefix string) string {
	name := def.DisplayName
	if name == "" {
		name = strings.ToUpper(c.GameType.String())
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🎮 **%s - Kết Quả Mới**\n\n", name)
	fmt.Fprintf(&b, "📊 **Kết quả:** %s\n", orNA(c.Result))
	fmt.Fprintf(&b, "🔑 **MD5:** `%s`\n", c.Fingerprint)
	fmt.Fprintf(&b, "🆔 **Session:** %s\n", orNA(c.SessionID))
	fmt.Fprintf(&b, "⏰ **Thời gian:** %s\n\n", displayTime(c))
	b.WriteString("---\n")
	fmt.Fprintf(&b, "🔗 **API Endpoint:** `%s/games/%s/latest`", apiPrefix, c.GameType)
	return b.String()
}

// FormatSystem renders an operational message.
func FormatSystem(body string, severity Severity) string {
	return fmt.Sprintf("🤖 **System %s**\n\n%s", strings.ToUpper(string(severity)), body)
}

// PlainText strips the Markdown used by FormatResult and FormatSystem.
func PlainText(markdown string) string {
	r := strings.NewReplacer("**", "", "`", "", "---", strings.Repeat("-", 50))
	return r.Replace(markdown)
}

func displayTime(c game.Candidate) string {
	if c.Source != nil {
		if ts, ok := c.Source[extract.FieldTimestamp].(string); ok && ts != "" {
			return ts
		}
	}
	return c.Timestamp.Format(time.RFC3339)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
