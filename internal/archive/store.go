// Package archive persists saved games and finished-game results.
package archive

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/park285/netchess/pkg/protocol"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

const (
	ErrNotFound = staticErr("saved game not found")
	ErrBadName  = staticErr("invalid save name")
)

// SaveStore keeps named game records. Names are sanitized by the caller's
// record package and treated as opaque keys here.
type SaveStore interface {
	Save(ctx context.Context, rec protocol.GameRecord) (bool, error)
	Load(ctx context.Context, name string) (protocol.GameRecord, error)
	List(ctx context.Context) ([]protocol.SaveSummary, error)
}

// ParseRedisURL converts redis://[:pass@]host:port/db into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("redis url without host")
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
