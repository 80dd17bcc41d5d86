package quant

import (
	"maps"
	"slices"
	"strings"
)

// DefaultTokens are registered on every deploy.
func DefaultTokens() []TokenInfo {
	return []TokenInfo{
		{Name: "ocqBTC", ProgramID: "bace93dd595a97c66e4548d88bfc96595f8b4bc8f5899b5d272e72af921e4ea9"},
		{Name: "ocqUSDT", ProgramID: "89c16b98b528c97d11f06f4f34871666c87634bd001d0cb9d66adea817f0a5a3"},
	}
}

// TokenRegistry maps token names to descriptors. Registration upserts by
// name; there is no removal. Not safe for concurrent use.
type TokenRegistry struct {
	tokens map[string]TokenInfo
}

func NewTokenRegistry(seed ...TokenInfo) *TokenRegistry {
	r := &TokenRegistry{tokens: make(map[string]TokenInfo, len(seed))}
	for _, t := range seed {
		r.Register(t)
	}
	return r
}

// Register stores info under its name and reports whether it replaced an
// existing descriptor.
func (r *TokenRegistry) Register(info TokenInfo) (replaced bool) {
	_, replaced = r.tokens[info.Name]
	r.tokens[info.Name] = info
	return replaced
}

func (r *TokenRegistry) Get(name string) (TokenInfo, bool) {
	t, ok := r.tokens[name]
	return t, ok
}

// List returns the descriptors ordered by name.
func (r *TokenRegistry) List() []TokenInfo {
	out := slices.Collect(maps.Values(r.tokens))
	slices.SortFunc(out, func(a, b TokenInfo) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (r *TokenRegistry) Len() int { return len(r.tokens) }
