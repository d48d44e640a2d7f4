package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/wait"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/bayleafwalker/bindery-scr/internal/reference"
	"github.com/bayleafwalker/bindery-scr/internal/registry"
)

const iface = "scr.churn.Target"

func main() {
	var workers int
	var iterations int
	var cardinality string
	var policy string
	var option string

	flag.IntVar(&workers, "workers", 16, "Number of goroutines publishing and withdrawing providers")
	flag.IntVar(&iterations, "iterations", 500, "Operations per worker")
	flag.StringVar(&cardinality, "cardinality", "1..n", "Reference cardinality")
	flag.StringVar(&policy, "policy", "dynamic", "Reference policy")
	flag.StringVar(&option, "policy-option", "greedy", "Reference policy option")
	opts := zap.Options{}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
	log := ctrl.Log.WithName("churn")

	desc, err := descriptor(cardinality, policy, option)
	if err != nil {
		log.Error(err, "invalid reference")
		os.Exit(2)
	}

	reg := registry.New(log)
	consumer := reference.ConfigurationID(uuid.NewString())
	m, err := reference.New(desc, reference.Consumer{Configuration: consumer, Registry: reg}, log)
	if err != nil {
		log.Error(err, "unable to create reference manager")
		os.Exit(2)
	}
	defer m.Close()

	var notifyMu sync.Mutex
	notifications := map[string]int{}
	m.RegisterListener(reference.ListenerFunc(func(n reference.Notification) error {
		notifyMu.Lock()
		defer notifyMu.Unlock()
		notifications[n.Event.String()]++
		return nil
	}))

	fmt.Printf("Starting churn: %d workers x %d operations against %s\n", workers, iterations, desc.Cardinality)

	var wg sync.WaitGroup
	start := time.Now()
	latencies := make(chan time.Duration, workers*iterations)
	survivors := make(chan int, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
			owner := reference.ConfigurationID(uuid.NewString())
			var mine []*registry.Registration

			for j := 0; j < iterations; j++ {
				opStart := time.Now()
				if len(mine) > 0 && rnd.Intn(2) == 0 {
					k := rnd.Intn(len(mine))
					mine[k].Unregister()
					mine = append(mine[:k], mine[k+1:]...)
				} else {
					g, err := reg.Publish(owner, []string{iface}, registry.WithRanking(rnd.Intn(10)))
					if err != nil {
						fmt.Printf("worker %d: publish failed: %v\n", id, err)
						return
					}
					mine = append(mine, g)
				}
				latencies <- time.Since(opStart)
			}
			survivors <- len(mine)
		}(i)
	}

	wg.Wait()
	close(latencies)
	close(survivors)
	totalDuration := time.Since(start)

	alive := 0
	for n := range survivors {
		alive += n
	}

	var totalLatency time.Duration
	count := 0
	for l := range latencies {
		totalLatency += l
		count++
	}

	if err := converge(log, m, alive); err != nil {
		fmt.Printf("Churn did not converge: %v\n", err)
		os.Exit(1)
	}

	if count > 0 {
		fmt.Printf("Churn completed in %v. Avg operation latency: %v\n", totalDuration, totalLatency/time.Duration(count))
	}
	fmt.Printf("Providers alive: %d, bound: %d, satisfied: %v\n", alive, len(m.GetBoundReferences()), m.IsSatisfied())
	notifyMu.Lock()
	defer notifyMu.Unlock()
	for event, n := range notifications {
		fmt.Printf("  %s: %d\n", event, n)
	}
}

func descriptor(cardinality, policy, option string) (reference.Descriptor, error) {
	card, err := reference.ParseCardinality(cardinality)
	if err != nil {
		return reference.Descriptor{}, err
	}
	p, err := reference.ParsePolicy(policy)
	if err != nil {
		return reference.Descriptor{}, err
	}
	o, err := reference.ParsePolicyOption(option)
	if err != nil {
		return reference.Descriptor{}, err
	}
	return reference.Descriptor{
		Name:         "churn",
		Interface:    iface,
		Cardinality:  card,
		Policy:       p,
		PolicyOption: o,
	}, nil
}

// converge waits until the manager reflects the final registry state.
func converge(log logr.Logger, m *reference.Manager, alive int) error {
	want := min(alive, m.Descriptor().Cardinality.Max)
	if m.Descriptor().Policy == reference.PolicyStatic && m.Descriptor().PolicyOption == reference.OptionReluctant {
		want = -1
	}
	return wait.PollUntilContextTimeout(context.Background(), 20*time.Millisecond, 10*time.Second, true, func(context.Context) (bool, error) {
		targets := len(m.GetTargetReferences())
		bound := len(m.GetBoundReferences())
		log.V(1).Info("waiting for convergence", "targets", targets, "bound", bound)
		if targets != alive {
			return false, nil
		}
		if want >= 0 && bound != want {
			return false, nil
		}
		return m.IsSatisfied() == (bound >= m.Descriptor().Cardinality.Min), nil
	})
}
