package channel

import (
	"strings"
	"sync"

	domerrors "github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/errors"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/logger"
)

// Registry is the startup-time registration table mapping channel plugin ids
// to behaviors. Registration happens during composition; lookups afterwards
// are lock-free reads in practice but guarded anyway.
type Registry struct {
	mu        sync.RWMutex
	behaviors map[string]Behavior
	order     []string
	log       logger.Logger
}

func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		behaviors: make(map[string]Behavior),
		log:       log,
	}
}

// Register validates the behavior's definition and adds it to the table.
func (r *Registry) Register(b Behavior) error {
	def := b.Definition()
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.behaviors[def.ID]; exists {
		return domerrors.NewDuplicateChannelError(def.ID)
	}
	r.behaviors[def.ID] = b
	r.order = append(r.order, def.ID)
	if base, ok := b.(interface{ setRegistry(*Registry) }); ok {
		base.setRegistry(r)
	}
	r.log.Debug("registered notifications channel", map[string]interface{}{
		"channelId": def.ID,
		"baseId":    def.Base(),
	})
	return nil
}

func (b *Base) setRegistry(r *Registry) { b.reg = r }

// Resolve returns the behavior registered for the given definition id.
func (r *Registry) Resolve(definitionID string) (Behavior, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.behaviors[definitionID]
	if !ok {
		return nil, domerrors.NewUnknownChannelError(definitionID)
	}
	return b, nil
}

// All returns every registered behavior in registration order.
func (r *Registry) All() []Behavior {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Behavior, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.behaviors[id])
	}
	return out
}

// BaseChannels returns behaviors usable without contextual parameterization.
func (r *Registry) BaseChannels() []Behavior {
	var out []Behavior
	for _, b := range r.All() {
		if b.IsBase() {
			out = append(out, b)
		}
	}
	return out
}

// DerivedChannels returns behaviors derived from a base channel.
func (r *Registry) DerivedChannels() []Behavior {
	var out []Behavior
	for _, b := range r.All() {
		if !b.IsBase() {
			out = append(out, b)
		}
	}
	return out
}

// DerivedFrom returns the derived channels whose parent is the given base id.
func (r *Registry) DerivedFrom(baseID string) []Behavior {
	var out []Behavior
	for _, b := range r.DerivedChannels() {
		if b.Definition().ParentBaseID == baseID {
			out = append(out, b)
		}
	}
	return out
}

// ResolveDefinitionFromComputedID maps a computed channel id back to the
// definition id that produced it by stripping colon-delimited segments off
// the right until a registered base id matches. This walk exists for rows
// persisted before the plugin id was stored on the notification itself; new
// code reads the stored plugin id instead.
func (r *Registry) ResolveDefinitionFromComputedID(computedID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// A computed id without tokens is the definition id itself.
	if !strings.Contains(computedID, ":") {
		if _, ok := r.behaviors[computedID]; ok {
			return computedID, nil
		}
		return "", domerrors.NewAmbiguousChannelError(computedID)
	}

	baseIDs := make(map[string][]string)
	for id, b := range r.behaviors {
		if b.IsComputed() {
			baseIDs[b.BaseID()] = append(baseIDs[b.BaseID()], id)
		}
	}

	segments := strings.Split(computedID, ":")
	for i := len(segments) - 1; i >= 1; i-- {
		prefix := strings.Join(segments[:i], ":")
		matches, ok := baseIDs[prefix]
		if !ok {
			continue
		}
		if len(matches) > 1 {
			// Two definitions share this colon-stripped prefix; the id cannot
			// be attributed to either.
			return "", domerrors.NewAmbiguousChannelError(computedID)
		}
		return matches[0], nil
	}

	return "", domerrors.NewAmbiguousChannelError(computedID)
}
