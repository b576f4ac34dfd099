package reinforce

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCoolingDown is returned when a ticket still has an active cooldown.
var ErrCoolingDown = fmt.Errorf("ticket is in cooling period")

// Record is one cooldown entry. At most one unexpired record exists per
// ticket.
type Record struct {
	Ticket    int64     `json:"ticket"`
	Type      EventType `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record no longer gates the ticket.
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// CooldownLedger gates reinforcement per ticket. When Redis is configured the
// entries live there with a TTL matching the cooldown expiry, so a restart
// does not forget recent reinforcements; without Redis (or when it is down)
// the ledger degrades to process-local memory.
type CooldownLedger struct {
	client *redis.Client

	mu    sync.RWMutex
	local map[int64]Record

	now func() time.Time
}

// NewCooldownLedger creates a ledger. client may be nil for memory-only use.
func NewCooldownLedger(client *redis.Client) *CooldownLedger {
	return &CooldownLedger{
		client: client,
		local:  make(map[int64]Record),
		now:    time.Now,
	}
}

func cooldownKey(ticket int64) string {
	return fmt.Sprintf("reinforce:cooldown:%d", ticket)
}

// Check returns ErrCoolingDown when an unexpired record exists for the
// ticket.
func (c *CooldownLedger) Check(ctx context.Context, ticket int64) error {
	// Local first: a Redis write that failed during Start leaves the gate
	// only in memory, so a Redis miss must not clear the ticket.
	c.mu.RLock()
	record, ok := c.local[ticket]
	c.mu.RUnlock()
	if ok && !record.Expired(c.now().UTC()) {
		return ErrCoolingDown
	}

	if c.client != nil {
		exists, err := c.client.Exists(ctx, cooldownKey(ticket)).Result()
		if err != nil {
			log.Printf("[REINFORCE] Redis cooldown check failed, using local ledger: %v", err)
			return nil
		}
		if exists > 0 {
			return ErrCoolingDown
		}
	}
	return nil
}

// Start records a cooldown for the ticket lasting the given duration. The
// local ledger is always written so a Redis outage mid-cycle cannot drop the
// gate.
func (c *CooldownLedger) Start(ctx context.Context, ticket int64, eventType EventType, duration time.Duration) {
	now := c.now().UTC()
	record := Record{
		Ticket:    ticket,
		Type:      eventType,
		CreatedAt: now,
		ExpiresAt: now.Add(duration),
	}

	c.mu.Lock()
	c.local[ticket] = record
	c.mu.Unlock()

	if c.client != nil {
		if err := c.client.Set(ctx, cooldownKey(ticket), string(eventType), duration).Err(); err != nil {
			log.Printf("[REINFORCE] Redis cooldown write failed for ticket %d: %v", ticket, err)
		}
	}
}

// Sweep drops expired local records. Redis entries expire on their own.
func (c *CooldownLedger) Sweep() {
	now := c.now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	for ticket, record := range c.local {
		if record.Expired(now) {
			delete(c.local, ticket)
		}
	}
}
