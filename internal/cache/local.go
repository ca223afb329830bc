package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Local is the process-local tier: a bounded LRU whose entries expire
// after a fixed default TTL. It is a shortcut in front of the
// distributed tier, never the sole record of anything.
type Local struct {
	lru *expirable.LRU[string, string]
}

type LocalConfig struct {
	MaxEntries int
	DefaultTTL time.Duration
}

func NewLocal(cfg LocalConfig) *Local {
	return &Local{
		lru: expirable.NewLRU[string, string](cfg.MaxEntries, nil, cfg.DefaultTTL),
	}
}

func (l *Local) Get(key string) (string, bool) {
	return l.lru.Get(key)
}

func (l *Local) Set(key, value string) {
	l.lru.Add(key, value)
}

func (l *Local) Del(key string) {
	l.lru.Remove(key)
}
