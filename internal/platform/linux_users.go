package platform

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// userTable resolves numeric Linux user ids to account names using a
// passwd(5) formatted file. Resolved names are cached and the file is
// re-read on a miss, so accounts created after startup are picked up.
type userTable struct {
	path   string
	logger *slog.Logger
	cache  *ttlcache.Cache[string, string]
}

func newUserTable(path string, ttl time.Duration, logger *slog.Logger) *userTable {
	u := &userTable{path: path, logger: logger}
	u.cache = ttlcache.New(
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithLoader[string, string](ttlcache.LoaderFunc[string, string](u.load)),
	)
	return u
}

// refresh loads every account from the passwd file into the cache.
func (u *userTable) refresh() error {
	names, err := readPasswd(u.path)
	if err != nil {
		return err
	}
	for uid, name := range names {
		u.cache.Set(uid, name, ttlcache.DefaultTTL)
	}
	return nil
}

// load is the cache miss handler. Unknown ids are cached as themselves so a
// missing account does not re-read the file every cycle.
func (u *userTable) load(c *ttlcache.Cache[string, string], uid string) *ttlcache.Item[string, string] {
	names, err := readPasswd(u.path)
	if err != nil {
		u.logger.Debug("reading account database", "path", u.path, "error", err)
	}
	for id, name := range names {
		if id != uid {
			c.Set(id, name, ttlcache.DefaultTTL)
		}
	}
	name, ok := names[uid]
	if !ok {
		name = uid
	}
	return c.Set(uid, name, ttlcache.DefaultTTL)
}

// lookup returns the account name for uid, or uid itself if it is unknown.
func (u *userTable) lookup(uid string) string {
	if uid == "" {
		return ""
	}
	item := u.cache.Get(uid)
	if item == nil {
		return uid
	}
	return item.Value()
}

// readPasswd parses name:password:uid:... lines into a uid to name map.
func readPasswd(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	names := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 3 || fields[0] == "" {
			continue
		}
		if _, seen := names[fields[2]]; !seen {
			names[fields[2]] = fields[0]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return names, nil
}
