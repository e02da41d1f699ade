package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fedid/guestsync/pkg/access"
	"github.com/fedid/guestsync/pkg/mail"
)

// webhookTimeout bounds one webhook call end to end. There is no
// application-level retry loop; retry is manual via resend.
const webhookTimeout = time.Minute

// Channel delivers payloads to applications: over HTTP with basic auth
// for webhook mode, or as a notification mail for email-hook mode.
// Webhook failures are captured as SCIMFailure records unless the
// context carries the replay suppression mark.
type Channel struct {
	client          *http.Client
	failures        FailureStore
	sender          mail.Sender
	operatorAddress string
	log             *logrus.Entry
}

// NewChannel creates a new Channel. operatorAddress receives failure
// notifications.
func NewChannel(failures FailureStore, sender mail.Sender, operatorAddress string, log *logrus.Entry) *Channel {
	return &Channel{
		client: &http.Client{
			Timeout:   webhookTimeout,
			Transport: &retryTransport{base: http.DefaultTransport},
		},
		failures:        failures,
		sender:          sender,
		operatorAddress: operatorAddress,
		log:             log,
	}
}

// retryTransport retries a request once when the connection itself
// fails (no response at all). Non-2xx responses are not retried here.
type retryTransport struct {
	base http.RoundTripper
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil || req.GetBody == nil {
		return resp, err
	}
	body, bodyErr := req.GetBody()
	if bodyErr != nil {
		return resp, err
	}
	retry := req.Clone(req.Context())
	retry.Body = body
	return t.base.RoundTrip(retry)
}

// Deliver implements Deliverer.
func (c *Channel) Deliver(ctx context.Context, app *access.Application, api APIKind, op OperationType, method, uri string, body []byte, remoteID string) (string, error) {
	if app.Mode == access.ProvisioningEmailHook {
		return "", c.deliverEmail(ctx, app, api, op, body)
	}
	return c.deliverWebhook(ctx, app, api, op, method, uri, body, remoteID)
}

// deliverEmail mails the payload to the application's hook address.
// This channel has no retry protocol: once the notification is sent the
// delivery counts as successful, and even a mail error only logs.
func (c *Channel) deliverEmail(ctx context.Context, app *access.Application, api APIKind, op OperationType, body []byte) error {
	deliveriesTotal.WithLabelValues("email_hook", string(api), string(op)).Inc()

	msg := mail.Message{
		To:      []string{app.EmailHookAddress},
		Subject: fmt.Sprintf("SCIM %s: %s", api, op),
		Body:    prettyJSON(body),
	}
	if err := c.sender.Send(ctx, msg); err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"application": app.Name,
			"api":         api,
			"operation":   op,
		}).Warn("email hook notification failed")
	}
	return nil
}

func (c *Channel) deliverWebhook(ctx context.Context, app *access.Application, api APIKind, op OperationType, method, uri string, body []byte, remoteID string) (string, error) {
	deliveriesTotal.WithLabelValues("webhook", string(api), string(op)).Inc()

	req, err := http.NewRequestWithContext(ctx, method, uri, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create provisioning request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(app.EndpointUsername, app.EndpointPassword)

	resp, err := c.client.Do(req)
	if err != nil {
		return c.capture(ctx, app, api, method, uri, body, remoteID, fmt.Errorf("failed to call %s %s: %w", method, uri, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.capture(ctx, app, api, method, uri, body, remoteID, fmt.Errorf("%s %s returned status %d", method, uri, resp.StatusCode))
	}

	// Only create responses carry an identifier we need.
	if op != OpCreate {
		return "", nil
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		c.log.WithError(err).WithField("uri", uri).Warn("could not decode create response")
		return "", nil
	}
	return created.ID, nil
}

// capture records a webhook failure and notifies the operator, unless
// the context is a suppressed replay, in which case the error
// propagates to the operator-facing caller.
func (c *Channel) capture(ctx context.Context, app *access.Application, api APIKind, method, uri string, body []byte, remoteID string, cause error) (string, error) {
	if ReplaySuppressed(ctx) {
		return "", cause
	}

	failuresCapturedTotal.WithLabelValues(string(api), method).Inc()

	failure := &SCIMFailure{
		API:           api,
		Method:        method,
		URI:           uri,
		Body:          string(body),
		RemoteID:      remoteID,
		ApplicationID: app.ID,
	}
	if err := c.failures.Create(ctx, failure); err != nil {
		// The failure record is the recovery path; losing it turns a
		// capturable failure into a hard one.
		return "", fmt.Errorf("failed to capture delivery failure (%v): %w", cause, err)
	}

	c.log.WithError(cause).WithFields(logrus.Fields{
		"application": app.Name,
		"method":      method,
		"uri":         uri,
		"failure_id":  failure.ID,
	}).Error("provisioning delivery failed, captured for replay")

	msg := mail.Message{
		To:      []string{c.operatorAddress},
		Subject: fmt.Sprintf("SCIM delivery failure: %s %s (%s)", method, uri, app.Name),
		Body: fmt.Sprintf("Delivery to application %q failed: %v\n\nMethod: %s\nURI: %s\n\nPayload:\n%s\n",
			app.Name, cause, method, uri, prettyJSON(body)),
	}
	if err := c.sender.Send(ctx, msg); err != nil {
		c.log.WithError(err).Warn("operator failure notification could not be sent")
	}
	return "", nil
}

func prettyJSON(body []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return string(body)
	}
	return buf.String()
}
