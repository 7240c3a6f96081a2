package redis

import (
	"context"
	"errors"
)

// Invalidator drops cached roster reads and announces the change.
type Invalidator struct {
	cache  *Cache
	pubsub *RosterPubSub
}

func NewInvalidator(cache *Cache, pubsub *RosterPubSub) *Invalidator {
	return &Invalidator{cache: cache, pubsub: pubsub}
}

func (i *Invalidator) InvalidateRosters(ctx context.Context, orderIDs []int64, signatures []string) error {
	keys := make([]string, 0, len(orderIDs)+len(signatures))
	for _, id := range orderIDs {
		keys = append(keys, KeyOrderRoster(id))
	}
	for _, sig := range signatures {
		keys = append(keys, KeyEventSummary(sig))
	}

	err := i.cache.Del(ctx, keys...)
	if i.pubsub != nil {
		err = errors.Join(err, i.pubsub.Publish(ctx, RosterChanged{OrderIDs: orderIDs, Signatures: signatures}))
	}
	return err
}

func (i *Invalidator) InvalidateAllRosters(ctx context.Context) error {
	err := i.cache.DelMatching(ctx, patternCachedReads()...)
	if i.pubsub != nil {
		err = errors.Join(err, i.pubsub.Publish(ctx, RosterChanged{All: true}))
	}
	return err
}
