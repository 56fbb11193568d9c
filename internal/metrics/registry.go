// Package metrics defines the set of known SQream utility-function metrics
// and the conversion of raw query results into structured records.
package metrics

import "sort"

// Metric describes one known utility function.
type Metric struct {
	Name string
	// SendToLoki is false for functions polled purely for their server-side
	// effect (e.g. reset_leveldb_stats); their results are never forwarded.
	SendToLoki bool
}

var registry = map[string]Metric{
	"show_server_status":  {Name: "show_server_status", SendToLoki: true},
	"show_locks":          {Name: "show_locks", SendToLoki: true},
	"get_leveldb_stats":   {Name: "get_leveldb_stats", SendToLoki: true},
	"show_cluster_nodes":  {Name: "show_cluster_nodes", SendToLoki: true},
	"get_license_info":    {Name: "get_license_info", SendToLoki: true},
	"reset_leveldb_stats": {Name: "reset_leveldb_stats", SendToLoki: false},
}

// Lookup returns the registry entry for a metric name.
func Lookup(name string) (Metric, bool) {
	m, ok := registry[name]
	return m, ok
}

// Known returns all registered metric names, sorted.
func Known() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
