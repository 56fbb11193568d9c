// Package poller runs one independent polling loop per configured metric:
// query the server, normalize the rows, encode them into a push envelope and
// deliver it to Loki. A failure in one metric's loop never affects another.
package poller

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sqreamdb/monitor-service/internal/metrics"
)

// ErrConfiguration marks an invalid metric set. It is fatal at startup and
// never retried.
var ErrConfiguration = errors.New("invalid metric configuration")

// MetricSpec is one configured metric: the utility function to poll and how
// often. Immutable for the process lifetime.
type MetricSpec struct {
	Name       string
	Interval   time.Duration
	SendToLoki bool
}

// BuildSpecs converts the configured metric map (name to interval seconds)
// into specs, rejecting unknown names and non-positive intervals. Specs come
// back sorted by name so task launch order is deterministic.
func BuildSpecs(configured map[string]int) ([]MetricSpec, error) {
	if len(configured) == 0 {
		return nil, fmt.Errorf("%w: no metrics configured", ErrConfiguration)
	}

	specs := make([]MetricSpec, 0, len(configured))
	for name, seconds := range configured {
		metric, ok := metrics.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: metric %q is not allowed, allowed metrics: %s",
				ErrConfiguration, name, strings.Join(metrics.Known(), ", "))
		}
		if seconds <= 0 {
			return nil, fmt.Errorf("%w: metric %q interval = %d, it can not be negative or zero",
				ErrConfiguration, name, seconds)
		}
		specs = append(specs, MetricSpec{
			Name:       name,
			Interval:   time.Duration(seconds) * time.Second,
			SendToLoki: metric.SendToLoki,
		})
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs, nil
}

// ValidateSpecs checks a spec set the scheduler was handed directly.
func ValidateSpecs(specs []MetricSpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("%w: no metrics configured", ErrConfiguration)
	}

	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return fmt.Errorf("%w: metric with empty name", ErrConfiguration)
		}
		if seen[spec.Name] {
			return fmt.Errorf("%w: duplicate metric %q", ErrConfiguration, spec.Name)
		}
		seen[spec.Name] = true
		if spec.Interval <= 0 {
			return fmt.Errorf("%w: metric %q interval must be positive, got %s",
				ErrConfiguration, spec.Name, spec.Interval)
		}
		if _, ok := metrics.Lookup(spec.Name); !ok {
			return fmt.Errorf("%w: metric %q is not allowed, allowed metrics: %s",
				ErrConfiguration, spec.Name, strings.Join(metrics.Known(), ", "))
		}
	}
	return nil
}
