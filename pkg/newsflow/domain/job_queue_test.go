package domain

import (
	"database/sql"
	"testing"
	"time"
)

func TestJobQueueItem_Duration(t *testing.T) {
	job := JobQueueItem{}
	if job.Duration() != 0 {
		t.Fatal("never started job should have zero duration")
	}
	job.Started = sql.NullTime{Time: base, Valid: true}
	if job.Duration() != 0 {
		t.Fatal("unfinished job should have zero duration")
	}
	job.Finished = sql.NullTime{Time: base.Add(1500 * time.Millisecond), Valid: true}
	if got := job.Duration(); got != 1500 {
		t.Fatalf("Duration = %d, want 1500", got)
	}
}

func TestJobQueueItem_IsMatureAtBoundary(t *testing.T) {
	job := JobQueueItem{ExecutionTime: base}
	if job.IsMature(base.Add(-time.Millisecond)) {
		t.Fatal("job must not mature before its execution time")
	}
	if !job.IsMature(base) {
		t.Fatal("job is eligible exactly at its execution time")
	}
}

func TestJobQueueItem_ParameterMap(t *testing.T) {
	job := JobQueueItem{Parameters: []JobQueueParameter{
		{Name: "tag", Value: "politics"},
		{Name: "tag", Value: "local"},
		{Name: "username", Value: "anna"},
	}}
	params := job.ParameterMap()
	if tags := params.All("tag"); len(tags) != 2 || tags[1] != "local" {
		t.Fatalf("tags = %v", tags)
	}
	if params.Get("username") != "anna" {
		t.Fatal("username parameter missing")
	}
}

func TestPluginConfiguration_PropertyMap(t *testing.T) {
	cfg := PluginConfiguration{Properties: []PluginConfigurationProperty{
		{Key: "endpoint", Value: "https://cms.example.com"},
		{Key: "header", Value: "A: 1"},
		{Key: "header", Value: "B: 2"},
	}}
	props := cfg.PropertyMap()
	if props.Get("endpoint") != "https://cms.example.com" || len(props.All("header")) != 2 {
		t.Fatalf("unexpected properties %v", props)
	}
}
