package models

import "time"

type DetailStatus string

const (
	DetailStatusSuccess   DetailStatus = "success"
	DetailStatusFailed    DetailStatus = "failed"
	DetailStatusCollected DetailStatus = "collected"
)

// Collection method tags.
const (
	MethodNone           = "none"
	MethodAnsible        = "ansible"
	MethodLocal          = "local"
	MethodReconcile      = "reconcile"
	MethodVMwarePlatform = "vmware_platform"
	MethodPlatformSync   = "platform_sync"
)

// CollectionDetail is an append-only record of one collection attempt.
type CollectionDetail struct {
	ID           int64
	UnitID       int64
	TaskID       string
	Status       DetailStatus
	Method       string
	ErrorMessage string
	RawFacts     []byte
	CollectedAt  time.Time
}

// UnitResult is the outcome of a unit within a task, derived from its latest
// detail.
type UnitResult struct {
	UnitID           int64
	Name             string
	Address          string
	CollectionStatus CollectionStatus
	Detail           *CollectionDetail
}
