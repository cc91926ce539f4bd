package metrics

import (
	"net/http"
	"path"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	prometheus "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Handler returns a HTTP handler which serves the metrics gathered from the
// registry. Only the GET method is allowed.
func Handler(registry prometheus.Gatherer) http.Handler {
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handler.ServeHTTP(w, r)
		default:
			_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
		}
	})
}

// RegisterHandler registers the metrics handler on the router, at the
// path "metrics" under the prefix
func RegisterHandler(router *http.ServeMux, prefix string, registry prometheus.Gatherer) {
	router.Handle(path.Join("/", prefix, "metrics"), Handler(registry))
}
