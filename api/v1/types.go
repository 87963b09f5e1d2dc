// Package v1 holds the wire types and routes of the /api/v1 HTTP API.
package v1

import "time"

type Collection struct {
	ID              string     `json:"id"`
	Kind            string     `json:"kind"`
	PlatformID      *int64     `json:"platform_id,omitempty"`
	UnitIDs         []int64    `json:"unit_ids"`
	Status          string     `json:"status"`
	ConcurrentLimit int        `json:"concurrent_limit"`
	Total           int        `json:"total"`
	Completed       int        `json:"completed"`
	Failed          int        `json:"failed"`
	Running         int        `json:"running"`
	Progress        int        `json:"progress"`
	Error           *string    `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

type CollectionList struct {
	Collections []Collection `json:"collections"`
	Total       int          `json:"total"`
}

type CreateCollectionRequest struct {
	UnitIDs         []int64 `json:"unit_ids"`
	ConcurrentLimit *int    `json:"concurrent_limit,omitempty"`
}

type PlatformSyncRequest struct {
	UnitIDs         []int64 `json:"unit_ids,omitempty"`
	ConcurrentLimit *int    `json:"concurrent_limit,omitempty"`
}

type UnitResult struct {
	UnitID           int64      `json:"unit_id"`
	Name             string     `json:"name"`
	Address          string     `json:"address"`
	CollectionStatus string     `json:"collection_status"`
	Status           *string    `json:"status,omitempty"`
	Method           *string    `json:"method,omitempty"`
	Error            *string    `json:"error,omitempty"`
	CollectedAt      *time.Time `json:"collected_at,omitempty"`
}

type ResultList struct {
	CollectionID string       `json:"collection_id"`
	Results      []UnitResult `json:"results"`
}

type Error struct {
	Error        string  `json:"error"`
	CollectionID *string `json:"collection_id,omitempty"`
}
