package notifier

import (
	"context"
	"fmt"

	"github.com/user/open-notifier/internal/domain"
)

// Stdout is a Notifier that prints to standard output. Used in local
// development when no Discord webhook is configured.
type Stdout struct{}

// NewStdout creates a new Stdout notifier.
func NewStdout() *Stdout {
	return &Stdout{}
}

// NotifyOpen prints the open event details to stdout.
func (n *Stdout) NotifyOpen(_ context.Context, event *domain.OpenEvent, _ string) error {
	fmt.Printf(
		"--- EMAIL OPENED ---\nLead: %s\nRecipient: %s\nSubject: %s\nOpens Count: %d\nOpened At: %s\n--------------------\n",
		event.LeadName,
		event.Recipient,
		event.Subject,
		event.OpensCount,
		event.OpenedAt.Format("2006-01-02 15:04:05"),
	)
	return nil
}
