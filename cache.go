package main

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"

	"github.com/golang/groupcache/lru"
)

// ==== Cache de resultados ====

// inputKey identifica uma execução pelo conteúdo das duas planilhas e pelos
// nomes de coluna em uso. Mudar um byte em qualquer das entradas muda a chave.
func inputKey(cols InputColumns, pref, uau []byte) string {
	h := sha256.New()
	for _, part := range [][]byte{
		[]byte(cols.PrefNumero), []byte(cols.PrefSituacao), []byte(cols.PrefData),
		[]byte(cols.UAUNumero), []byte(cols.UAUStatus), []byte(cols.UAUEmpresa),
		pref, uau,
	} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(part)))
		h.Write(n[:])
		h.Write(part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CacheStats é o estado observável do cache.
type CacheStats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// resultCache guarda os últimos resultados por chave de conteúdo (LRU).
// Quem lê recebe sempre uma cópia.
type resultCache struct {
	mu      sync.Mutex
	lru     *lru.Cache
	stats   CacheStats
	metrics *metrics
}

func newResultCache(maxEntries int, m *metrics) *resultCache {
	if maxEntries <= 0 {
		maxEntries = 32
	}
	c := &resultCache{lru: lru.New(maxEntries), metrics: m}
	c.lru.OnEvicted = func(lru.Key, interface{}) { c.stats.Evictions++ }
	return c
}

func (c *resultCache) Get(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++
		c.observe("miss")
		return nil, false
	}
	c.stats.Hits++
	c.observe("hit")
	return v.(*Result).Clone(), true
}

func (c *resultCache) Add(key string, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, r.Clone())
}

func (c *resultCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.lru.Len()
	return s
}

func (c *resultCache) observe(desfecho string) {
	if c.metrics != nil {
		c.metrics.cacheTotal.WithLabelValues(desfecho).Inc()
	}
}
