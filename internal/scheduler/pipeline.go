package scheduler

import (
	"fmt"

	"github.com/google/uuid"
)

// DefaultBatchSize is used when BuildPipeline is given a non-positive size.
const DefaultBatchSize = 10

// BuildPipeline returns a fresh discovery -> batch processing -> publish
// scheduling -> analysis chain. Every call yields new IDs, so several
// pipelines can be in flight as independent graphs.
func BuildPipeline(batchSize int) ([]*Task, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	stages := []struct {
		kind   Kind
		params Params
	}{
		{KindDiscovery, Params{
			"max_videos":       batchSize,
			"use_ai_selection": true,
			"viral_threshold":  60,
		}},
		{KindBatchProcessing, Params{
			"batch_size":          batchSize,
			"optimize_for_viral":  true,
			"parallel_processing": true,
		}},
		{KindPublishScheduling, Params{
			"use_audience_insights": true,
			"optimize_timing":       true,
			"multi_timezone":        true,
		}},
		{KindAnalysis, Params{
			"update_models":     true,
			"generate_insights": true,
		}},
	}

	tasks := make([]*Task, 0, len(stages))
	var prev string
	for _, stage := range stages {
		est, _ := EstimateFor(stage.kind)
		duration, resources := Estimated(stage.kind, stage.params)

		t := &Task{
			ID:                fmt.Sprintf("%s_%s", stage.kind, uuid.NewString()),
			Kind:              stage.kind,
			Priority:          est.Priority,
			Params:            stage.params,
			EstimatedDuration: duration,
			Resources:         resources,
			Status:            TaskPending,
		}
		if prev != "" {
			t.DependsOn = []string{prev}
		}
		tasks = append(tasks, t)
		prev = t.ID
	}

	dag := NewDAG()
	for _, t := range tasks {
		if err := dag.AddTask(t); err != nil {
			return nil, fmt.Errorf("build pipeline: %w", err)
		}
	}
	if _, err := dag.Validate(); err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return tasks, nil
}
