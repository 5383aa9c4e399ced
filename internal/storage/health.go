package storage

import (
	"context"
)

// HealthChecker checks whether the configured bucket exists and is reachable.
type HealthChecker struct {
	source *S3Source
}

// NewHealthChecker creates an S3 health checker for the given source.
func NewHealthChecker(source *S3Source) *HealthChecker {
	return &HealthChecker{source: source}
}

// Name identifies the dependency in health reports.
func (h *HealthChecker) Name() string { return "s3" }

// HealthCheck verifies S3 connectivity by checking the bucket.
func (h *HealthChecker) HealthCheck(ctx context.Context) error {
	return h.source.checkBucket(ctx)
}
