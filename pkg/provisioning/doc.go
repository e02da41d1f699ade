// Package provisioning implements the outbound synchronizer that
// mirrors local role membership changes to each affected application as
// SCIM user and group records.
//
// Delivery is synchronous within the triggering mutation. Webhook
// failures are captured as durable SCIMFailure records plus an operator
// notification instead of failing the mutation; an operator replays a
// captured failure through ResendFailure, during which capture is
// suppressed so a second failure surfaces instead of looping.
package provisioning
