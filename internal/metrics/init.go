package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics(sizeCodes []string) {
	volumes := []string{"media", "database", "unknown"}
	fsOps := []string{"read", "write", "stat", "readdir"}

	for _, vol := range volumes {
		for _, op := range fsOps {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
		}
	}

	for _, op := range []string{"stat", "open", "readdir"} {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, code := range sizeCodes {
		for _, status := range []string{"success", "skipped", "error", "error_unsupported"} {
			ThumbnailGenerationsTotal.WithLabelValues(code, status)
		}
	}

	for _, action := range []string{"registered", "orphan_pruned", "duplicate_pruned", "timestamp_refreshed"} {
		ReconcileActionsTotal.WithLabelValues(action)
	}

	for _, reason := range []string{"outside", "excluded", "file_excluded", "archive_entry"} {
		JailViolationsTotal.WithLabelValues(reason)
	}

	for _, status := range []string{"extracted", "skipped", "renamed", "collision"} {
		ArchiveEntriesTotal.WithLabelValues(status)
	}

	for _, op := range []string{"list", "get", "create", "upload", "upload_bits", "mkdir", "update",
		"remove", "rmdir", "move", "move_dir", "search", "inflate", "peek", "recreate",
		"link", "unlink", "post_media", "media_posts", "rebuild", "open"} {
		ManagerOperationsTotal.WithLabelValues(op, "success")
		ManagerOperationsTotal.WithLabelValues(op, "error")
		ManagerOperationDuration.WithLabelValues(op)
	}

	for _, ev := range []string{"create", "update", "remove", "recreate"} {
		HookInvocationsTotal.WithLabelValues(ev, "success")
		HookInvocationsTotal.WithLabelValues(ev, "error")
	}

	for _, trigger := range []string{"startup", "interval", "change", "manual"} {
		RebuildTriggersTotal.WithLabelValues(trigger)
	}

	for _, status := range []string{"success", "failure", "cached"} {
		AuthAttemptsTotal.WithLabelValues(status)
	}

	for _, v := range []string{"public", "private"} {
		MediaItemsTotal.WithLabelValues(v)
	}

	for _, op := range []string{"list_dir", "get_by_id", "find_by_file", "insert", "update", "delete",
		"search", "link_post", "begin_transaction", "commit", "rollback"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
