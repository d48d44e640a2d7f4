package resolver

import "context"

// Resolver predicts, from manifests alone, how the references of a set of
// components would bind once every declared provider is published.
type Resolver interface {
	Resolve(ctx context.Context, in Input) (Plan, error)
}
