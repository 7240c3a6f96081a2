package redis

import "fmt"

const ns = "roster:v1"

func KeyOrderRoster(orderID int64) string {
	return fmt.Sprintf("%s:order:%d:roster", ns, orderID)
}

func KeyEventSummary(sig string) string {
	return fmt.Sprintf("%s:event:%s:summary", ns, sig)
}

// KeyOrderLock is shared with other writers of the order store and stays
// outside the versioned namespace.
func KeyOrderLock(orderID int64) string {
	return fmt.Sprintf("roster:lock:order:%d", orderID)
}

func KeyDeferredQueue() string {
	return ns + ":deferred"
}

func KeyDeferredInflight() string {
	return ns + ":deferred:inflight"
}

func KeyCheckpoint(job string) string {
	return fmt.Sprintf("%s:checkpoint:%s", ns, job)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

// patternCachedReads matches every cached read-path key.
func patternCachedReads() []string {
	return []string{ns + ":order:*:roster", ns + ":event:*:summary"}
}

func ChannelRostersChanged() string {
	return ns + ":rosters:changed"
}
