package match

import (
	"time"

	"github.com/park285/netchess/internal/rules"
	"github.com/park285/netchess/pkg/protocol"
)

// Clock mirrors the server's elapsed-time counters. Values are replaced on
// every sync; between syncs the side to move accrues local time.
type Clock struct {
	Started  bool
	Turn     rules.Team
	White    time.Duration
	Black    time.Duration
	SyncedAt time.Time
}

func (c *Clock) adopt(p protocol.Clock, now time.Time) {
	c.Started = true
	if t, ok := rules.ParseTeam(p.Turn); ok {
		c.Turn = t
	}
	c.White = time.Duration(p.WhiteMs) * time.Millisecond
	c.Black = time.Duration(p.BlackMs) * time.Millisecond
	c.SyncedAt = now
}

// Elapsed returns the time used by team as of now.
func (c Clock) Elapsed(team rules.Team, now time.Time) time.Duration {
	d := c.White
	if team == rules.Black {
		d = c.Black
	}
	if c.Started && team == c.Turn && now.After(c.SyncedAt) {
		d += now.Sub(c.SyncedAt)
	}
	return d
}
