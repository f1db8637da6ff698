package metrics

import (
	"context"
	"strings"
	"time"

	"github.com/hack-dev/hack/pkg/registry"
	"github.com/hack-dev/hack/pkg/runtimecache"
	"github.com/hack-dev/hack/pkg/supervisor"
)

// CollectInterval is how often the Collector samples daemon state into
// gauges. The package's counters (refreshes, resets, auth failures, ...)
// are not touched by the Collector, and no package in this module
// increments them.
const CollectInterval = 15 * time.Second

// Collector periodically samples the registry, runtime cache, and
// supervisor into Prometheus gauges, which the auxiliary /metrics
// Prometheus endpoint exposes; GET /v1/metrics does not read them.
type Collector struct {
	registry *registry.Registry
	cache    *runtimecache.Cache
	sup      *supervisor.Supervisor

	stopCh chan struct{}
}

// NewCollector returns a Collector over the given components. Any of them
// may be nil, in which case the corresponding metrics are left unset.
func NewCollector(reg *registry.Registry, cache *runtimecache.Cache, sup *supervisor.Supervisor) *Collector {
	return &Collector{
		registry: reg,
		cache:    cache,
		sup:      sup,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic collection in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(CollectInterval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts periodic collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectRegistry()
	c.collectRuntime()
	c.collectSupervisor()
}

func (c *Collector) collectRegistry() {
	if c.registry == nil {
		return
	}
	projects, err := c.registry.List()
	if err != nil {
		return
	}
	RegisteredProjectsTotal.Set(float64(len(projects)))
}

func (c *Collector) collectRuntime() {
	if c.cache == nil {
		return
	}
	snapshot, _ := c.cache.Snapshot(context.Background())

	statusCounts := make(map[string]int)
	for _, rp := range snapshot {
		for _, containers := range rp.Services {
			for _, ctr := range containers {
				statusCounts[normalizeContainerStatus(ctr.Status)]++
			}
		}
	}
	for status, count := range statusCounts {
		RuntimeContainersTotal.WithLabelValues(status).Set(float64(count))
	}
}

func (c *Collector) collectSupervisor() {
	if c.sup == nil {
		return
	}
	jobCounts := make(map[string]int)
	for _, j := range c.sup.AllJobs() {
		jobCounts[string(j.Status)]++
	}
	for status, count := range jobCounts {
		ActiveJobsTotal.WithLabelValues(status).Set(float64(count))
	}
	ActiveShellsTotal.Set(float64(c.sup.ShellCount()))
}

// normalizeContainerStatus buckets docker's free-form status strings (e.g.
// "Up 3 minutes", "Exited (0) 2 hours ago") into the coarse labels used by
// RuntimeContainersTotal.
func normalizeContainerStatus(status string) string {
	lower := strings.ToLower(status)
	switch {
	case strings.HasPrefix(lower, "up"):
		return "running"
	case strings.HasPrefix(lower, "exited"):
		return "exited"
	case strings.HasPrefix(lower, "restarting"):
		return "restarting"
	case strings.HasPrefix(lower, "paused"):
		return "paused"
	default:
		return "unknown"
	}
}
