package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ConsoleNotifier prints notifications to a terminal. Reports are printed as
// their text rendering.
type ConsoleNotifier struct {
	out          io.Writer
	colorEnabled bool
	mu           sync.Mutex
}

// NewConsoleNotifier creates a ConsoleNotifier writing to out.
func NewConsoleNotifier(out io.Writer, colorEnabled bool) *ConsoleNotifier {
	return &ConsoleNotifier{out: out, colorEnabled: colorEnabled}
}

// Name returns the name of the notifier.
func (c *ConsoleNotifier) Name() string {
	return "console"
}

// IsEnabled returns whether the notifier is enabled.
func (c *ConsoleNotifier) IsEnabled() bool {
	return c.out != nil
}

// Send prints n.
func (c *ConsoleNotifier) Send(ctx context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.out, FormatNotification(n, c.colorEnabled))
	return err
}

// SendReport prints the report text.
func (c *ConsoleNotifier) SendReport(ctx context.Context, r *Report) error {
	return c.Send(ctx, reportNotification(r))
}

// SendError prints an error notice.
func (c *ConsoleNotifier) SendError(ctx context.Context, err error, errContext string) error {
	return c.Send(ctx, errorNotification(err, errContext))
}

// FormatNotification formats a notification for terminal display.
func FormatNotification(n Notification, colorEnabled bool) string {
	if n.Type == NotificationReport {
		msg := n.Message
		if !strings.HasSuffix(msg, "\n") {
			msg += "\n"
		}
		return msg
	}

	label := color.New(color.FgWhite)
	indicator := "INFO"
	if n.Type == NotificationError {
		label = color.New(color.FgRed, color.Bold)
		indicator = "ERROR"
	}
	if !colorEnabled {
		label.DisableColor()
	}

	var sb strings.Builder
	timestamp := ""
	if !n.Timestamp.IsZero() {
		timestamp = "[" + n.Timestamp.Format("15:04:05") + "] "
	}
	sb.WriteString(label.Sprintf("%s%s", timestamp, indicator))
	fmt.Fprintf(&sb, " | %s\n", n.Title)
	for _, line := range strings.Split(strings.TrimRight(n.Message, "\n"), "\n") {
		if line != "" {
			fmt.Fprintf(&sb, "    %s\n", line)
		}
	}
	return sb.String()
}
