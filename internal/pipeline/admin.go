package pipeline

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meetcleo/cdc-pipeline/pkg/log"
)

// AdminServer exposes /healthz and /metrics, the only HTTP surface this
// daemon has (no GraphQL/REST API, unlike the teacher's web backend).
func AdminServer(addr string) *http.Server {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:         addr,
		Handler:      handlers.CombinedLoggingHandler(log.ErrWriter, r),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
