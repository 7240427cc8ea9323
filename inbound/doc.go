// Package inbound is the HTTP boundary of the webhook pipeline.
//
// A Receiver serves POST /webhooks/{provider}/{webhookID}. Each delivery is
// verified by its provider's Verifier, decoded into a webhooks.Event and
// pushed onto the queue. The sender gets 200 as soon as the push returns;
// processing outcome never changes the response. Under the reject_new
// overflow policy a full queue answers 429 with Retry-After so the sender
// redelivers later.
package inbound
