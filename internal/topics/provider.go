package topics

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"versusmatch/internal/domain"
	"versusmatch/internal/ports"
)

// Provider implements ports.TopicProvider over a Catalog.
type Provider struct {
	catalog Catalog

	mu      sync.Mutex
	rng     *rand.Rand
	topic   string
	prompts []string
	server  bool
}

func NewProvider(catalog Catalog) *Provider {
	return NewProviderWithSource(catalog, rand.NewSource(time.Now().UnixNano()))
}

// NewProviderWithSource picks topics from src.
func NewProviderWithSource(catalog Catalog, src rand.Source) *Provider {
	return &Provider{catalog: catalog, rng: rand.New(src)}
}

// LoadByLevel picks a random topic for level and clears any server topic.
func (p *Provider) LoadByLevel(ctx context.Context, level domain.DifficultyLevel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries := p.catalog.Levels[level]
	if len(entries) == 0 {
		return fmt.Errorf("no topics for level %q", level)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	entry := entries[p.rng.Intn(len(entries))]
	p.topic = entry.Topic
	p.prompts = append([]string(nil), entry.Prompts...)
	p.server = false
	return nil
}

// SetTopic installs a topic from outside the catalog.
func (p *Provider) SetTopic(topic string, prompts []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.prompts = append([]string(nil), prompts...)
	p.server = true
}

func (p *Provider) CurrentTopic() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.topic
}

// PromptByIndex returns "" when index is out of range.
func (p *Provider) PromptByIndex(index int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.prompts) {
		return ""
	}
	return p.prompts[index]
}

func (p *Provider) PromptCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

func (p *Provider) UsingServerTopic() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.server
}

func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = ""
	p.prompts = nil
	p.server = false
}

var _ ports.TopicProvider = (*Provider)(nil)
