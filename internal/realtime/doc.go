// Package realtime fans vote changes out to live subscribers.
//
// A Hub keeps one channel per topic ("setlist:<id>" or "show:<id>") and
// delivers each event at most once to every open stream on that topic.
// VoteUpdates for a song carry the counter version written by the store;
// the hub drops any update older than one it has already delivered, so a
// subscriber never sees a song's count go backwards in time.
//
// Subscription wraps any Transport in a reconnecting state machine:
// CONNECTING -> OPEN, and on error BACKOFF(n) with a delay that doubles per
// attempt, until the attempt budget is spent and the subscription becomes
// FAILED. A failed subscription stays failed; callers re-subscribe.
//
// Channels with no subscribers are removed by a periodic sweep once they
// have been idle for the configured period.
package realtime
