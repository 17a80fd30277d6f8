package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andreibyf/aishacrm-2-sub007/pkg/application"
)

const DefaultPath = "/metrics"

// PrometheusController exposes a gatherer over HTTP. The crm and outbox
// collectors register on the default registry, which is what serve exposes.
type PrometheusController struct {
	path    string
	handler http.Handler
}

func NewPrometheusController(path string, gatherer prometheus.Gatherer) application.Controller {
	if path == "" {
		path = DefaultPath
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &PrometheusController{
		path: path,
		handler: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
			ErrorHandling:     promhttp.ContinueOnError,
			EnableOpenMetrics: true,
		}),
	}
}

func (c *PrometheusController) Key() string {
	return c.path
}

func (c *PrometheusController) Register(r *mux.Router) {
	r.Handle(c.path, c.handler).Methods(http.MethodGet, http.MethodHead)
}
