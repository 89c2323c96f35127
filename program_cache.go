package settings

import (
	lru "github.com/hashicorp/golang-lru"
)

// ProgramCache stores compiled formula programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

type lruProgramCache struct {
	cache *lru.Cache
}

// NewLRUProgramCache returns a ProgramCache holding at most size programs.
func NewLRUProgramCache(size int) (ProgramCache, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &lruProgramCache{cache: cache}, nil
}

func (c *lruProgramCache) Get(key string) (any, bool) {
	return c.cache.Get(key)
}

func (c *lruProgramCache) Set(key string, value any) {
	c.cache.Add(key, value)
}
