// Package waclient implementa o lado de produção da fronteira de protocolo:
// a busca de versão via HTTP e a ponte WebSocket com o engine de protocolo
// que mantém as conexões WhatsApp de fato.
package waclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wafleet/internal/domain/waproto"
)

const defaultCheckUpdateURL = "https://web.whatsapp.com/check-update?version=2.3000.0&platform=web"

// HTTPVersionFetcher busca a versão corrente do protocolo no endpoint
// público de verificação de atualização
type HTTPVersionFetcher struct {
	client *http.Client
	url    string
}

// NewHTTPVersionFetcher cria o buscador de versão de produção
func NewHTTPVersionFetcher() *HTTPVersionFetcher {
	return &HTTPVersionFetcher{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    defaultCheckUpdateURL,
	}
}

// NewHTTPVersionFetcherWithURL cria o buscador apontando para outro endpoint
func NewHTTPVersionFetcherWithURL(url string) *HTTPVersionFetcher {
	f := NewHTTPVersionFetcher()
	f.url = url
	return f
}

// FetchLatestVersion implementa waproto.VersionFetcher
func (f *HTTPVersionFetcher) FetchLatestVersion(ctx context.Context) (waproto.Version, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return waproto.Version{}, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return waproto.Version{}, fmt.Errorf("failed to fetch protocol version: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return waproto.Version{}, fmt.Errorf("version check returned status %d", resp.StatusCode)
	}

	var payload struct {
		CurrentVersion string `json:"currentVersion"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return waproto.Version{}, fmt.Errorf("failed to decode version check response: %w", err)
	}

	return parseVersion(payload.CurrentVersion)
}

// parseVersion converte "2.3000.1026" na tripla numérica do protocolo
func parseVersion(s string) (waproto.Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return waproto.Version{}, fmt.Errorf("malformed protocol version %q", s)
	}

	var version waproto.Version
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return waproto.Version{}, fmt.Errorf("malformed protocol version %q: %w", s, err)
		}
		version[i] = uint32(n)
	}
	return version, nil
}
