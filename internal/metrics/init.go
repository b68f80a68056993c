package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, status := range []string{"success", "timeout", "error"} {
		ProbeTotal.WithLabelValues(status)
	}
	for _, tier := range []string{"memory", "database"} {
		ProbeCacheHits.WithLabelValues(tier)
	}
	for _, op := range []string{"get", "put", "delete"} {
		ProbeStoreErrors.WithLabelValues(op)
	}

	for _, op := range []string{"get_probe", "put_probe", "delete_probe", "prune_probes", "count_probes"} {
		DBQueryDuration.WithLabelValues(op)
		for _, status := range []string{"success", "error"} {
			DBQueryTotal.WithLabelValues(op, status)
		}
	}

	for _, mode := range []string{"direct", "progressive", "segmented"} {
		DeliveryDecisions.WithLabelValues(mode)
	}
	for _, result := range []string{"full", "partial", "unsatisfiable"} {
		RangeRequestsTotal.WithLabelValues(result)
	}

	for _, mode := range []string{"progressive", "segment"} {
		EncoderJobDuration.WithLabelValues(mode)
		for _, status := range []string{"success", "error", "canceled"} {
			EncoderJobsTotal.WithLabelValues(mode, status)
		}
	}

	for _, trigger := range []string{"request", "preload", "regenerate"} {
		SegmentsGenerated.WithLabelValues(trigger)
	}
	for _, result := range []string{"generated", "idle", "busy", "error"} {
		PreloadCycles.WithLabelValues(result)
	}

	for _, status := range []string{"success", "error"} {
		PreviewGenerationsTotal.WithLabelValues(status)
	}

	for _, op := range []string{"stat", "open"} {
		for _, vol := range []string{"media", "cache", "unknown"} {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
		}
	}
}
