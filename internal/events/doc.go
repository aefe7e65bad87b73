// Package events fans job snapshots out to per-job subscribers.
//
// Each subscription owns an unbounded mailbox. Publish appends to every
// mailbox for the job under the broadcaster lock and never waits on a reader,
// so event order per subscriber always matches publish order.
package events
