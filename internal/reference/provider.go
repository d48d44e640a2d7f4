package reference

import (
	"github.com/bayleafwalker/bindery-scr/internal/filter"
)

// Standard provider properties every registry publishes.
const (
	PropObjectClass    = "objectclass"
	PropServiceID      = "service.id"
	PropServiceRanking = "service.ranking"
	PropServiceScope   = "service.scope"
)

// ConfigurationID identifies a component configuration, the unit that both
// declares references and publishes providers.
type ConfigurationID string

// ProviderID is the registration id of a provider. Ids are unique and
// ascending in registration order.
type ProviderID uint64

// ProviderScope is the instancing mode of a provider.
type ProviderScope string

const (
	ProviderScopeSingleton ProviderScope = "singleton"
	ProviderScopeBundle    ProviderScope = "bundle"
	ProviderScopePrototype ProviderScope = "prototype"
)

// ProviderMetadata is what the registry exposes about a provider. The
// reference manager never looks at the provider's payload.
type ProviderMetadata struct {
	ID         ProviderID
	Ranking    int
	Owner      ConfigurationID
	Scope      ProviderScope
	Interfaces []string
	Properties filter.Properties
}

type ProviderEventKind int

const (
	ProviderAdded ProviderEventKind = iota
	ProviderRemoved
	ProviderModified
)

func (k ProviderEventKind) String() string {
	switch k {
	case ProviderAdded:
		return "ADDED"
	case ProviderRemoved:
		return "REMOVED"
	case ProviderModified:
		return "MODIFIED"
	}
	return "UNKNOWN"
}

// ProviderEvent is delivered by the registry for every change to a provider
// of a subscribed interface.
type ProviderEvent struct {
	Kind     ProviderEventKind
	Provider ProviderID
}

type SubscriptionID uint64

// ProviderSource is the query and change-notification side of the registry.
type ProviderSource interface {
	// Subscribe delivers events for providers of interfaceName matching
	// filter, before or after the change. fn may be called concurrently
	// from any goroutine, including re-entrantly.
	Subscribe(interfaceName, filter string, fn func(ProviderEvent)) (SubscriptionID, error)
	Unsubscribe(id SubscriptionID)
	// FindMatching lists the providers currently matching, best first.
	FindMatching(interfaceName, filter string) []ProviderID
	Metadata(id ProviderID) (ProviderMetadata, bool)
}

// ProviderBroker materializes providers for a consumer. Acquire may block,
// for example to construct a prototype instance.
type ProviderBroker interface {
	Acquire(consumer ConfigurationID, id ProviderID) error
	Release(consumer ConfigurationID, id ProviderID)
}

// Registry is everything a reference manager needs from the provider registry.
type Registry interface {
	ProviderSource
	ProviderBroker
}

// FilterEvaluator matches target filters against provider properties. It
// fails closed on malformed filters.
type FilterEvaluator interface {
	Matches(filter string, props filter.Properties) bool
}

// Consumer is the context of the component configuration that declares the
// reference.
type Consumer struct {
	Configuration ConfigurationID
	Registry      Registry
}

// Valid reports whether the consumer context can be used.
func (c Consumer) Valid() bool {
	return c.Registry != nil && c.Configuration != ""
}
