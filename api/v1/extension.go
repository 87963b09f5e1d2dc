package v1

import (
	"github.com/kubev2v/inventory-collector/internal/models"
)

func (c *Collection) FromModel(m models.CollectionTask) {
	c.ID = m.ID
	c.Kind = string(m.Kind.Type)
	if m.Kind.IsPlatformSync() {
		id := m.Kind.PlatformID
		c.PlatformID = &id
	}
	c.UnitIDs = append([]int64{}, m.Kind.UnitIDs...)
	c.Status = string(m.Status)
	c.ConcurrentLimit = m.ConcurrentLimit
	c.Total = m.Total()
	c.Completed = m.CompletedCount
	c.Failed = m.FailedCount
	c.Running = m.CurrentRunning
	c.Progress = m.Progress
	if m.ErrorMessage != "" {
		msg := m.ErrorMessage
		c.Error = &msg
	}
	c.CreatedAt = m.CreatedAt
	c.StartedAt = m.StartedAt
	c.CompletedAt = m.CompletedAt
}

func (r *UnitResult) FromModel(m models.UnitResult) {
	r.UnitID = m.UnitID
	r.Name = m.Name
	r.Address = m.Address
	r.CollectionStatus = string(m.CollectionStatus)
	if m.Detail == nil {
		return
	}
	status := string(m.Detail.Status)
	method := m.Detail.Method
	at := m.Detail.CollectedAt
	r.Status = &status
	r.Method = &method
	r.CollectedAt = &at
	if m.Detail.ErrorMessage != "" {
		msg := m.Detail.ErrorMessage
		r.Error = &msg
	}
}
