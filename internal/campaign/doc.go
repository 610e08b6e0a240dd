// Package campaign runs one outreach pass over the recipient roster.
//
// A run loads and ranks the roster, then contacts recipients one at a time.
// Every attempt is recorded in the send log before the next recipient is
// considered, so the daily limit, the per-company cap and the
// already-contacted checks hold across restarts. Sends are paced by a token
// bucket that releases one send per interval.
//
// Only one goroutine sends. Cancelling the context stops the run between
// sends; the run is then finished with the cancelled outcome.
package campaign
