// Package providers wires the built-in webhook handlers into a
// webhooks.HandlerTable.
//
// Provider packages (slack, google/drive) normalize their event payloads and
// make follow-up API calls through a resilient transport.Client, so a failing
// provider API trips its own circuit without affecting the others.
package providers
