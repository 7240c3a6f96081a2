package memory

import (
	"context"
	"sync"
)

type Checkpoints struct {
	mu      sync.Mutex
	cursors map[string]int64
}

func NewCheckpoints() *Checkpoints {
	return &Checkpoints{cursors: make(map[string]int64)}
}

func (c *Checkpoints) Load(ctx context.Context, job string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cursors[job]
	return v, ok, nil
}

func (c *Checkpoints) Save(ctx context.Context, job string, cursor int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors[job] = cursor
	return nil
}

func (c *Checkpoints) Clear(ctx context.Context, job string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cursors, job)
	return nil
}
