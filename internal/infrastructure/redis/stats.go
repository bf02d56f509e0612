package redis

import (
	"bufio"
	"context"
	"strconv"
	"strings"

	"github.com/avatarctic/realtime-core/internal/core/ports"
)

// Stats reports the in-process counters plus key count, memory and uptime read live from
// INFO. A store error or malformed report leaves the live fields zero.
func (c *CacheService) Stats(ctx context.Context) ports.CacheStats {
	s := ports.CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}

	client, err := c.Client()
	if err != nil {
		c.warn("stats", "", err)
		return s
	}
	if info, err := client.Info(ctx).Result(); err != nil {
		c.warn("stats", "", err)
	} else {
		applyInfo(&s, info, c.redisCfg.DB)
	}
	if s.Keys == 0 {
		if n, err := client.DBSize(ctx).Result(); err == nil {
			s.Keys = n
		}
	}
	return s
}

// applyInfo extracts used_memory_human, uptime_in_seconds and the keys= figure of the
// selected db from an INFO reply. Unknown or unparsable lines are skipped.
func applyInfo(s *ports.CacheStats, info string, db int) {
	dbPrefix := "db" + strconv.Itoa(db) + ":"
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "used_memory_human:"):
			s.Memory = strings.TrimPrefix(line, "used_memory_human:")
		case strings.HasPrefix(line, "uptime_in_seconds:"):
			if v, err := strconv.ParseInt(strings.TrimPrefix(line, "uptime_in_seconds:"), 10, 64); err == nil {
				s.UptimeSeconds = v
			}
		case strings.HasPrefix(line, dbPrefix):
			for _, field := range strings.Split(strings.TrimPrefix(line, dbPrefix), ",") {
				k, v, ok := strings.Cut(field, "=")
				if !ok || k != "keys" {
					continue
				}
				if n, err := strconv.ParseInt(v, 10, 64); err == nil {
					s.Keys = n
				}
			}
		}
	}
}
