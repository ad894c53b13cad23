package flow

import (
	"log/slog"
	"sync"

	"github.com/BotWeave/BotWeave/internal/models"
)

// FlowVersionSource fetches the raw JSON document of a flow version.
type FlowVersionSource interface {
	GetFlowVersion(ref string) ([]byte, error)
}

// DefinitionProvider resolves a flow version ref to a parsed definition.
type DefinitionProvider interface {
	GetDefinition(ref string) (*models.FlowDefinition, error)
}

// CachingDefinitionProvider parses and validates each flow version once and
// serves the parsed document from memory afterwards. Versions are immutable,
// so cached entries never expire.
type CachingDefinitionProvider struct {
	source FlowVersionSource
	mu     sync.RWMutex
	cache  map[string]*models.FlowDefinition
}

// NewCachingDefinitionProvider creates a provider over the given source.
func NewCachingDefinitionProvider(source FlowVersionSource) *CachingDefinitionProvider {
	return &CachingDefinitionProvider{
		source: source,
		cache:  make(map[string]*models.FlowDefinition),
	}
}

// GetDefinition returns the parsed definition for ref. A malformed document
// or an unknown ref surfaces as a DefinitionError.
func (p *CachingDefinitionProvider) GetDefinition(ref string) (*models.FlowDefinition, error) {
	p.mu.RLock()
	def, ok := p.cache[ref]
	p.mu.RUnlock()
	if ok {
		return def, nil
	}

	raw, err := p.source.GetFlowVersion(ref)
	if err != nil {
		slog.Error("DefinitionProvider.GetDefinition: fetch failed", "ref", ref, "error", err)
		return nil, &DefinitionError{Ref: ref, Detail: "fetch failed", Err: err}
	}
	def, err = models.ParseFlowDefinition(raw)
	if err != nil {
		slog.Error("DefinitionProvider.GetDefinition: invalid definition", "ref", ref, "error", err)
		return nil, &DefinitionError{Ref: ref, Detail: "invalid definition", Err: err}
	}

	p.mu.Lock()
	p.cache[ref] = def
	p.mu.Unlock()
	slog.Debug("DefinitionProvider.GetDefinition: parsed and cached", "ref", ref, "screens", len(def.Screens))
	return def, nil
}
