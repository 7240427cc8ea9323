// Package core holds the contracts shared by the integration packages:
// configuration, the error taxonomy, logger and metrics contracts, and the
// tick sources that drive background loops. It must not depend on breaker,
// transport, webhooks, or store packages.
package core
