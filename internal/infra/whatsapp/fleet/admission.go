package fleet

import (
	"context"
	"sync"
	"time"

	"wafleet/internal/domain/waproto"
)

// VersionCache memoriza a versão do protocolo por um TTL para que uma
// recuperação de frota inteira custe uma única consulta remota. Falha na
// consulta propaga: sem versão não se constrói socket.
type VersionCache struct {
	fetcher waproto.VersionFetcher
	ttl     time.Duration

	mu        sync.Mutex
	version   waproto.Version
	fetchedAt time.Time
}

// NewVersionCache cria o cache sobre o buscador remoto
func NewVersionCache(fetcher waproto.VersionFetcher, ttl time.Duration) *VersionCache {
	return &VersionCache{fetcher: fetcher, ttl: ttl}
}

// FetchLatestVersion devolve a versão cacheada enquanto o TTL vale;
// depois disso volta ao buscador remoto
func (c *VersionCache) FetchLatestVersion(ctx context.Context) (waproto.Version, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < c.ttl {
		return c.version, nil
	}

	version, err := c.fetcher.FetchLatestVersion(ctx)
	if err != nil {
		return waproto.Version{}, err
	}

	c.version = version
	c.fetchedAt = time.Now()
	return version, nil
}
