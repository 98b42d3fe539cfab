package evm

import (
	"encoding/base64"
	"sync"

	"github.com/debridge-finance/oracle-node/models"
)

// Provider is one RPC endpoint descriptor. isActive means the endpoint
// answered its last probe; isValid means its reported chain id matched the
// configured one.
type Provider struct {
	RPCURL   string
	User     string
	Password string

	active bool
	valid  bool
}

// ProviderSet is the bounded per-chain provider health structure. It is
// mutated only from within the owning chain's exclusive scan window.
type ProviderSet struct {
	chainId uint64

	mu        sync.RWMutex
	providers []*Provider
	lastUsed  *Provider
}

func NewProviderSet(chainId uint64, configs []models.ProviderConfig) *ProviderSet {
	providers := make([]*Provider, 0, len(configs))
	for _, config := range configs {
		providers = append(providers, &Provider{
			RPCURL:   config.RPCURL,
			User:     config.User,
			Password: config.Password,
			active:   true,
		})
	}
	return &ProviderSet{
		chainId:   chainId,
		providers: providers,
	}
}

// NotFailed returns the active and identity-validated providers in config order.
func (s *ProviderSet) NotFailed() []*Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Provider
	for _, p := range s.providers {
		if p.active && p.valid {
			out = append(out, p)
		}
	}
	return out
}

// Failed returns the inactive providers in config order.
func (s *ProviderSet) Failed() []*Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Provider
	for _, p := range s.providers {
		if !p.active {
			out = append(out, p)
		}
	}
	return out
}

// Candidates returns every provider in selection order: not-failed first,
// then the rest, each group in config order.
func (s *ProviderSet) Candidates() []*Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var healthy, rest []*Provider
	for _, p := range s.providers {
		if p.active && p.valid {
			healthy = append(healthy, p)
		} else {
			rest = append(rest, p)
		}
	}
	return append(healthy, rest...)
}

func (s *ProviderSet) SetStatus(p *Provider, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.active = active
}

func (s *ProviderSet) SetValidationStatus(p *Provider, valid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.valid = valid
}

func (s *ProviderSet) IsValid(p *Provider) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return p.valid
}

func (s *ProviderSet) setLastUsed(p *Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = p
}

// MarkLastUsedSuspect deactivates the provider that served the most recent
// call; used by the identity-mismatch escalation path.
func (s *ProviderSet) MarkLastUsedSuspect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastUsed != nil {
		s.lastUsed.active = false
	}
}

// AuthHeader returns a Basic authorization header value for providers
// configured with credentials, or an empty string.
func (s *ProviderSet) AuthHeader(p *Provider) string {
	if p.User == "" {
		return ""
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(p.User + ":" + p.Password))
	return "Basic " + credentials
}
