package filter

import (
	"time"

	"github.com/go-logr/logr"
	gocache "github.com/patrickmn/go-cache"
)

const (
	DefaultExpiration      = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
)

type compiled struct {
	filter *Filter
	err    error
}

// Evaluator compiles and memoizes filters. It never panics and fails closed:
// a malformed filter matches nothing.
type Evaluator struct {
	log   logr.Logger
	cache *gocache.Cache
}

func NewEvaluator(log logr.Logger) *Evaluator {
	return &Evaluator{
		log:   log.WithName("filter"),
		cache: gocache.New(DefaultExpiration, DefaultCleanupInterval),
	}
}

// Compile returns the cached compilation of raw. A compile error is logged
// once per cache lifetime of the filter string.
func (e *Evaluator) Compile(raw string) (*Filter, error) {
	if v, found := e.cache.Get(raw); found {
		if c, ok := v.(compiled); ok {
			return c.filter, c.err
		}
	}

	f, err := Compile(raw)
	if err != nil {
		e.log.Error(err, "filter evaluation failed; treating filter as never matching", "filter", raw)
	}
	e.cache.SetDefault(raw, compiled{filter: f, err: err})
	return f, err
}

// Matches reports whether props satisfy raw.
func (e *Evaluator) Matches(raw string, props Properties) bool {
	f, err := e.Compile(raw)
	if err != nil {
		return false
	}
	return f.Matches(props)
}
