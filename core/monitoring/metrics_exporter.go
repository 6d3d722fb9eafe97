package monitoring

import (
	"strconv"

	"lora-console/core/store"

	"github.com/prometheus/client_golang/prometheus"
)

const MetricPrefix = "lora_console_"

var apiUpDesc = prometheus.NewDesc(
	MetricPrefix+"api_up",
	"Whether the last job API health check succeeded",
	nil,
	nil,
)

var jobsDesc = prometheus.NewDesc(
	MetricPrefix+"jobs",
	"Number of jobs in the last fetched list",
	[]string{"status"},
	nil,
)

var progressPercentDesc = prometheus.NewDesc(
	MetricPrefix+"selected_job_progress_percent",
	"Progress of the selected job",
	[]string{"job_id"},
	nil,
)

var stepDesc = prometheus.NewDesc(
	MetricPrefix+"selected_job_step",
	"Current and total training steps of the selected job",
	[]string{"job_id", "kind"},
	nil,
)

var lossDesc = prometheus.NewDesc(
	MetricPrefix+"selected_job_loss",
	"Last reported loss of the selected job",
	[]string{"job_id"},
	nil,
)

var errorDesc = prometheus.NewDesc(
	MetricPrefix+"error",
	"1 while an error is displayed",
	nil,
	nil,
)

var versionDesc = prometheus.NewDesc(
	MetricPrefix+"state_version",
	"Number of view state changes",
	nil,
	nil,
)

// StoreCollector exports the view state as Prometheus metrics
type StoreCollector struct {
	store *store.Store
}

// NewStoreCollector creates a collector reading from st
func NewStoreCollector(st *store.Store) *StoreCollector {
	return &StoreCollector{store: st}
}

func (c *StoreCollector) Describe(desc chan<- *prometheus.Desc) {
	desc <- apiUpDesc
	desc <- jobsDesc
	desc <- progressPercentDesc
	desc <- stepDesc
	desc <- lossDesc
	desc <- errorDesc
	desc <- versionDesc
}

func (c *StoreCollector) Collect(metrics chan<- prometheus.Metric) {
	st := c.store.Snapshot()

	metrics <- prometheus.MustNewConstMetric(apiUpDesc, prometheus.GaugeValue, boolValue(st.Health == store.HealthOnline))
	metrics <- prometheus.MustNewConstMetric(errorDesc, prometheus.GaugeValue, boolValue(st.Error != ""))
	metrics <- prometheus.MustNewConstMetric(versionDesc, prometheus.CounterValue, float64(st.Version))

	counts := map[string]int{}
	for _, job := range st.Jobs {
		counts[string(job.Status)]++
	}
	for status, n := range counts {
		metrics <- prometheus.MustNewConstMetric(jobsDesc, prometheus.GaugeValue, float64(n), status)
	}

	if st.SelectedID == 0 {
		return
	}
	id := strconv.FormatInt(st.SelectedID, 10)
	p := st.Progress
	metrics <- prometheus.MustNewConstMetric(progressPercentDesc, prometheus.GaugeValue, float64(p.Percent), id)
	metrics <- prometheus.MustNewConstMetric(stepDesc, prometheus.GaugeValue, float64(p.CurrentStep), id, "current")
	metrics <- prometheus.MustNewConstMetric(stepDesc, prometheus.GaugeValue, float64(p.TotalSteps), id, "total")
	if p.Loss != nil {
		metrics <- prometheus.MustNewConstMetric(lossDesc, prometheus.GaugeValue, *p.Loss, id)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
