package models

import "time"

// ScheduleJobRequest is the input for putting a new item on the job queue.
type ScheduleJobRequest struct {
	Name                  string     `json:"name"`
	TypeClass             string     `json:"typeClass" validate:"required"`
	TypeClassID           int64      `json:"typeClassId" validate:"gte=0"`
	PluginAction          string     `json:"pluginAction" validate:"required_without=PluginConfigurationID"`
	PluginConfigurationID int64      `json:"pluginConfigurationId" validate:"gte=0"`
	ExecutionTime         time.Time  `json:"executionTime"`
	Parameters            []Property `json:"parameters" validate:"dive"`
}
