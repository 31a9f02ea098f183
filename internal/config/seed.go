package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/registry"
)

// RegistrySeed is the YAML shape for seeding the protocol registry: known
// protocol contracts and the tokens they trade.
type RegistrySeed struct {
	Entries []SeedEntry   `yaml:"entries"`
	Tokens  []TokenConfig `yaml:"tokens"`
}

// SeedEntry binds one contract address to a protocol family.
type SeedEntry struct {
	Address  string `yaml:"address"`
	Protocol string `yaml:"protocol"`
}

var knownProtocols = map[domain.Protocol]bool{
	domain.ProtocolUniswapV2:   true,
	domain.ProtocolUniswapV3:   true,
	domain.ProtocolSushiSwapV2: true,
}

// LoadRegistrySeed reads and validates a registry seed file.
func LoadRegistrySeed(path string) (*RegistrySeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry seed: %w", err)
	}

	var seed RegistrySeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse registry seed: %w", err)
	}

	for i, e := range seed.Entries {
		if e.Address == "" {
			return nil, fmt.Errorf("registry seed entry %d: address is required", i)
		}
		if !knownProtocols[domain.Protocol(e.Protocol)] {
			return nil, fmt.Errorf("registry seed entry %d: unknown protocol %q", i, e.Protocol)
		}
	}
	for i, t := range seed.Tokens {
		if t.Address == "" {
			return nil, fmt.Errorf("registry seed token %d: address is required", i)
		}
		if t.Decimals == 0 {
			return nil, fmt.Errorf("registry seed token %d: decimals is required", i)
		}
	}
	return &seed, nil
}

// RegistryEntries converts the seed entries to registry rows.
func (s *RegistrySeed) RegistryEntries() []registry.Entry {
	entries := make([]registry.Entry, len(s.Entries))
	for i, e := range s.Entries {
		entries[i] = registry.Entry{
			Address:  domain.HexToAddress(e.Address),
			Protocol: domain.Protocol(e.Protocol),
		}
	}
	return entries
}

// DomainTokens converts the seed tokens to domain tokens.
func (s *RegistrySeed) DomainTokens() []domain.Token {
	tokens := make([]domain.Token, len(s.Tokens))
	for i, t := range s.Tokens {
		tokens[i] = domain.Token{
			Address:  domain.HexToAddress(t.Address),
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
		}
	}
	return tokens
}
