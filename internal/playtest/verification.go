package playtest

import (
	"context"
	"errors"
	"fmt"

	"github.com/bpbrianpark/enigma-game/internal/domain/types"
	"github.com/bpbrianpark/enigma-game/pkg/logger"
)

// verifySessions checks each server snapshot against the replies its player
// received: same attempt count, same found set, no entry found twice.
func verifySessions(ctx context.Context, c *Client, players []*player, stats *Stats) error {
	log := logger.Get()
	log.Info(ctx, "verifying sessions", logger.Int("players", len(players)))

	var errs []error
	for _, p := range players {
		snap, err := c.Session(ctx, p.sessionID)
		if err != nil {
			errs = append(errs, fmt.Errorf("player %d: %w", p.plan.Player, err))
			continue
		}
		if err := verifySnapshot(p, snap); err != nil {
			errs = append(errs, fmt.Errorf("player %d: %w", p.plan.Player, err))
			continue
		}
		stats.Verified++
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.Info(ctx, "session verification completed", logger.Int("verified", stats.Verified))
	return nil
}

func verifySnapshot(p *player, snap types.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if snap.Attempts != p.recorded {
		return fmt.Errorf("server counted %d attempts, player saw %d", snap.Attempts, p.recorded)
	}
	if len(snap.Found) != len(p.found) {
		return fmt.Errorf("server found %d entries, player saw %d", len(snap.Found), len(p.found))
	}

	seen := make(map[string]bool, len(snap.Found))
	for _, e := range snap.Found {
		if seen[e.ID] {
			return fmt.Errorf("entry %q found twice", e.Label)
		}
		seen[e.ID] = true
		if _, ok := p.found[e.ID]; !ok {
			return fmt.Errorf("server found %q which the player never scored", e.Label)
		}
	}
	if snap.Total > 0 && len(snap.Found) > snap.Total {
		return fmt.Errorf("found %d of only %d entries", len(snap.Found), snap.Total)
	}
	return nil
}
