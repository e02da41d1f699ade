package provisioning

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fedid/guestsync/pkg/mail"
)

// FailureDigest mails the operator a periodic summary of outstanding
// delivery failures, grouped per application. Scheduled from the server
// bootstrap via cron.
type FailureDigest struct {
	store           FailureStore
	sender          mail.Sender
	operatorAddress string
	log             *logrus.Entry
}

// NewFailureDigest creates a new FailureDigest
func NewFailureDigest(store FailureStore, sender mail.Sender, operatorAddress string, log *logrus.Entry) *FailureDigest {
	return &FailureDigest{store: store, sender: sender, operatorAddress: operatorAddress, log: log}
}

// Run composes and sends one digest. No mail is sent when there are no
// outstanding failures.
func (d *FailureDigest) Run(ctx context.Context) error {
	failures, err := d.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load failures for digest: %w", err)
	}
	if len(failures) == 0 {
		return nil
	}

	byApplication := make(map[string][]*SCIMFailure)
	var order []string
	for _, f := range failures {
		if _, seen := byApplication[f.ApplicationName]; !seen {
			order = append(order, f.ApplicationName)
		}
		byApplication[f.ApplicationName] = append(byApplication[f.ApplicationName], f)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d provisioning failure(s) awaiting operator action.\n\n", len(failures))
	for _, name := range order {
		group := byApplication[name]
		fmt.Fprintf(&b, "Application %s: %d failure(s)\n", name, len(group))
		for _, f := range group {
			fmt.Fprintf(&b, "  #%d  %s %s %s  since %s\n", f.ID, f.API, f.Method, f.URI, f.CreatedAt.Format("2006-01-02 15:04"))
		}
		b.WriteString("\n")
	}

	msg := mail.Message{
		To:      []string{d.operatorAddress},
		Subject: fmt.Sprintf("SCIM failure digest: %d outstanding", len(failures)),
		Body:    b.String(),
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send failure digest: %w", err)
	}
	d.log.WithField("failures", len(failures)).Info("failure digest sent")
	return nil
}
