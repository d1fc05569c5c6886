package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var SearchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pinalbum_search_requests_total",
	Help: "Total number of photo searches sent to the remote API",
}, []string{"result"})
var SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "pinalbum_search_duration_seconds",
	Help:    "Histogram for the remote photo search duration in seconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
})
var ImageDownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pinalbum_image_downloads_total",
	Help: "Total number of image downloads started for pending photos",
}, []string{"result"})
var StoreCommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pinalbum_store_commits_total",
	Help: "Total number of record store commits",
}, []string{"result"})
var ActiveAlbumSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "pinalbum_active_album_sessions",
	Help: "Current number of open album sessions",
})
var BrokerMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pinalbum_broker_messages_total",
	Help: "Total number of store batch messages handled by the broker client",
}, []string{"direction", "result"})
