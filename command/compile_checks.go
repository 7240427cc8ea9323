package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[EnqueueWebhookMessage] = (*EnqueueWebhookCommand)(nil)
	_ gocmd.Commander[DrainBatchMessage]     = (*DrainBatchCommand)(nil)
	_ gocmd.Commander[FlushStatsMessage]     = (*FlushStatsCommand)(nil)
	_ gocmd.Commander[ResetCircuitMessage]   = (*ResetCircuitCommand)(nil)
)
