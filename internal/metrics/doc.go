/*
Package metrics records cloudpath activity on a private Prometheus registry.

# Overview

A Collector implements the observer hooks of the other packages: the accessor reports every
dispatched operation, the bundle cache every construction, write handles every part, commit and
large-transfer switch, and the path layer every chunk plan and transfer volume. Metrics live on a
registry owned by the collector, so embedding programs never share the global default registry.

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Addr:      ":9464",
		Path:      "/metrics",
		Namespace: "cloudpath",
	})
	if err != nil {
		log.Fatal(err)
	}

	if err := collector.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer collector.Stop(ctx)

# Prometheus Metrics

Counters:
  - cloudpath_operations_total{scheme,operation,status}
  - cloudpath_errors_total{operation,type}: type is the lower-cased error code when known
  - cloudpath_transfer_bytes_total{scheme,direction}
  - cloudpath_chunk_plans_total{direction,tier,strategy}
  - cloudpath_multipart_parts_total{scheme}
  - cloudpath_multipart_commits_total{scheme,strategy}
  - cloudpath_multipart_fallbacks_total{scheme,reason}
  - cloudpath_bundle_builds_total{scheme,status}

Histograms:
  - cloudpath_operation_duration_seconds{scheme,operation}
  - cloudpath_transfer_size_bytes{direction}
  - cloudpath_multipart_part_size_bytes{scheme}
  - cloudpath_bundle_build_duration_seconds

# HTTP Endpoints

/metrics serves the registry in Prometheus or OpenMetrics format, /health a static JSON status,
/debug/operations a table of per-operation counts and /debug/transfers the per-scheme transfer
statistics as JSON. Handler returns the same mux for embedding into an existing server.

# Thread Safety

All Collector methods are safe for concurrent use. A disabled collector accepts every call and
records nothing.
*/
package metrics
