// Package webhooks contains the asynchronous webhook ingestion pipeline.
//
// Verified events are pushed onto a bounded in-memory queue without blocking.
// A batch tick drains up to BatchSize of the oldest events and processes them
// concurrently through a provider handler table; results are written as one
// multi-row log insert per batch and folded into a stats buffer that a second
// tick flushes as one atomic increment per webhook.
//
// Queue contents, the stats buffer, and the in-flight flag are local to the
// process. Events still queued when the process exits are lost.
package webhooks
