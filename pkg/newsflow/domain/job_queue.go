package domain

import (
	"database/sql"
	"time"

	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

// JobQueueItem is a scheduled execution of a plugin action against a piece of
// content. It owns its parameters.
type JobQueueItem struct {
	ID                    int64
	Name                  string
	TypeClass             string
	TypeClassID           int64
	PluginAction          string
	PluginConfigurationID sql.NullInt64
	Status                models.JobStatus
	ExecutionTime         time.Time
	Added                 time.Time
	Started               sql.NullTime
	Finished              sql.NullTime
	RetryCount            int
	LastError             sql.NullString
	ExecutorID            sql.NullInt64
	Parameters            []JobQueueParameter
}

type JobQueueParameter struct {
	ID         int64
	JobQueueID int64
	Name       string
	Value      string
}

// Duration returns finished - started in milliseconds, or 0 if the job has
// not both started and finished.
func (j *JobQueueItem) Duration() int64 {
	if !j.Started.Valid || !j.Finished.Valid {
		return 0
	}
	return j.Finished.Time.Sub(j.Started.Time).Milliseconds()
}

// IsMature reports whether the job's execution time has been reached.
func (j *JobQueueItem) IsMature(now time.Time) bool {
	return !j.ExecutionTime.After(now)
}

func (j *JobQueueItem) ParameterPairs() []models.Property {
	out := make([]models.Property, 0, len(j.Parameters))
	for _, p := range j.Parameters {
		out = append(out, models.Property{Key: p.Name, Value: p.Value})
	}
	return out
}

func (j *JobQueueItem) ParameterMap() models.Properties {
	return models.PropertiesFrom(j.ParameterPairs())
}

// JobQueueEvent is an audit record of a scheduler decision about a job.
type JobQueueEvent struct {
	ID         int64
	JobQueueID int64
	ExecutorID int64
	Type       string
	Text       string
	DateTime   time.Time
}
