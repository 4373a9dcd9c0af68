package parquetfile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what a Writer produced. A nil Registerer gives unregistered
// counters.
type Metrics struct {
	records             prometheus.Counter
	pages               *prometheus.CounterVec
	dictionaryFallbacks prometheus.Counter
	rowGroups           prometheus.Counter
	bytesWritten        prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		records: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "proto2parquet_records_total",
			Help: "Records shredded into the output file.",
		}),
		pages: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "proto2parquet_pages_total",
			Help: "Pages finalized, by page type.",
		}, []string{"type"}),
		dictionaryFallbacks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "proto2parquet_dictionary_fallbacks_total",
			Help: "Column chunks that switched from dictionary to plain encoding.",
		}),
		rowGroups: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "proto2parquet_row_groups_total",
			Help: "Row groups written.",
		}),
		bytesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "proto2parquet_written_bytes_total",
			Help: "Bytes written to the output file.",
		}),
	}
}
