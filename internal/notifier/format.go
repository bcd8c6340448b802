package notifier

import (
	"fmt"
	"strings"

	"mailbox-poller/internal/mailbox"
)

// FormatAlert renders the notification text for a newly arrived message.
func FormatAlert(accountEmail string, msg mailbox.MessageSummary) string {
	var b strings.Builder
	b.WriteString(":envelope: *New mail arrived*\n\n")
	fmt.Fprintf(&b, ":memo: *Subject*\n%s\n\n", msg.Subject)
	fmt.Fprintf(&b, ":bust_in_silhouette: *From*\n`%s`\n\n", msg.From)
	fmt.Fprintf(&b, ":clock10: *Received*\n%s\n\n", msg.ReceivedAt.Format("01-02 15:04"))
	fmt.Fprintf(&b, ":paperclip: *Size*\n%s\n\n", FormatSize(msg.Size))
	fmt.Fprintf(&b, ":inbox_tray: *Mailbox*\n%s", accountEmail)
	return b.String()
}

// FormatSize renders a byte count as B, KB or MB with one decimal.
func FormatSize(bytes int) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	}
}
