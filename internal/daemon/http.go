package daemon

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
	"sigs.k8s.io/yaml"
)

var errNotReady = errors.New("unsatisfied references")

// Handler serves /metrics, /healthz, /readyz and /statusz.
func (r *Runtime) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz/", http.StripPrefix("/healthz", &healthz.Handler{Checks: map[string]healthz.Checker{
		"ping": healthz.Ping,
	}}))
	mux.Handle("/readyz/", http.StripPrefix("/readyz", &healthz.Handler{Checks: map[string]healthz.Checker{
		"references": r.readyCheck,
	}}))
	mux.HandleFunc("/statusz", r.serveStatus)
	return mux
}

func (r *Runtime) readyCheck(_ *http.Request) error {
	if !r.Ready() {
		return errNotReady
	}
	return nil
}

func (r *Runtime) serveStatus(w http.ResponseWriter, _ *http.Request) {
	out, err := yaml.Marshal(map[string]any{
		"items":  r.Manifests(),
		"cycles": r.Graph().Cycles(),
	})
	if err != nil {
		r.log.Error(err, "unable to render status")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(out)
}
