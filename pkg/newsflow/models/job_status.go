package models

// JobStatus is the lifecycle of a job queue item:
//
//	WAITING -> READY -> EXECUTION -> COMPLETED | FAILED | FAILED_COMPLETED
//
// FAILED items become READY again once their execution time is reached.
type JobStatus string

const (
	JobWaiting         JobStatus = "WAITING"
	JobReady           JobStatus = "READY"
	JobExecution       JobStatus = "EXECUTION"
	JobCompleted       JobStatus = "COMPLETED"
	JobFailed          JobStatus = "FAILED"
	JobFailedCompleted JobStatus = "FAILED_COMPLETED"
)

var AllJobStatuses = []JobStatus{JobWaiting, JobReady, JobExecution, JobCompleted, JobFailed, JobFailedCompleted}

// IsTerminal reports whether the scheduler will never touch an item in this status again.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailedCompleted
}

// IsPending reports whether an item in this status is promoted once it matures.
func (s JobStatus) IsPending() bool {
	return s == JobWaiting || s == JobFailed
}

func ParseJobStatus(v string) (JobStatus, bool) {
	for _, s := range AllJobStatuses {
		if string(s) == v {
			return s, true
		}
	}
	return "", false
}
