package models

import "time"

// BucketTarget is an S3-compatible bucket probed before a backup.
type BucketTarget struct {
	Endpoint        string // host or URL; empty means AWS
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// BucketResult holds the result of a bucket probe.
type BucketResult struct {
	Reachable bool
	Duration  time.Duration
	Error     error
}
