package scheduler

import (
	"testing"
	"time"
)

func TestBuildPipeline(t *testing.T) {
	tasks, err := BuildPipeline(5)
	if err != nil {
		t.Fatalf("BuildPipeline() error = %v", err)
	}
	if len(tasks) != 4 {
		t.Fatalf("expected 4 stages, got %d", len(tasks))
	}

	wantKinds := []Kind{KindDiscovery, KindBatchProcessing, KindPublishScheduling, KindAnalysis}
	wantPriorities := []Priority{PriorityHigh, PriorityNormal, PriorityLow, PriorityLow}
	for i, task := range tasks {
		if task.Kind != wantKinds[i] {
			t.Errorf("stage %d: kind %s, want %s", i, task.Kind, wantKinds[i])
		}
		if task.Priority != wantPriorities[i] {
			t.Errorf("stage %d: priority %s, want %s", i, task.Priority, wantPriorities[i])
		}
		if task.EstimatedDuration <= 0 || len(task.Resources) == 0 {
			t.Errorf("stage %d: expected estimates, got %v %v", i, task.EstimatedDuration, task.Resources)
		}
		if i == 0 {
			if len(task.DependsOn) != 0 {
				t.Errorf("discovery should have no dependencies, got %v", task.DependsOn)
			}
			continue
		}
		if len(task.DependsOn) != 1 || task.DependsOn[0] != tasks[i-1].ID {
			t.Errorf("stage %d should depend on %s, got %v", i, tasks[i-1].ID, task.DependsOn)
		}
	}

	if tasks[0].Params["max_videos"] != 5 {
		t.Errorf("discovery should carry the batch size, got %v", tasks[0].Params)
	}
}

func TestBuildPipeline_FreshIDs(t *testing.T) {
	first, _ := BuildPipeline(1)
	second, _ := BuildPipeline(1)

	seen := make(map[string]bool)
	for _, task := range append(first, second...) {
		if seen[task.ID] {
			t.Fatalf("duplicate id %s across pipelines", task.ID)
		}
		seen[task.ID] = true
	}
}

func TestBuildPipeline_DefaultBatchSize(t *testing.T) {
	tasks, err := BuildPipeline(0)
	if err != nil {
		t.Fatal(err)
	}
	if tasks[1].Params["batch_size"] != DefaultBatchSize {
		t.Errorf("expected default batch size, got %v", tasks[1].Params["batch_size"])
	}
}

func TestEstimated_Multipliers(t *testing.T) {
	base, baseRes := Estimated(KindBatchProcessing, nil)
	if base != 600*time.Second {
		t.Errorf("expected 600s base, got %v", base)
	}

	d, res := Estimated(KindBatchProcessing, Params{"batch_size": 4, "video_duration": "60"})
	want := 600*time.Second + 4*30*time.Second + 60*2*time.Second
	if d != want {
		t.Errorf("expected %v, got %v", want, d)
	}
	if res[ResourceOpenAIQuota] != baseRes[ResourceOpenAIQuota]+4*500 {
		t.Errorf("expected per-item quota, got %v", res[ResourceOpenAIQuota])
	}

	d, _ = Estimated(KindPublishScheduling, Params{"file_size_mb": 50.0})
	if d != 300*time.Second+100*time.Second {
		t.Errorf("expected per-megabyte time, got %v", d)
	}

	d, _ = Estimated(KindAnalysis, Params{"batch_size": "not a number"})
	if d != 180*time.Second {
		t.Errorf("malformed params should be ignored, got %v", d)
	}
}

func TestEstimated_ReturnsCopy(t *testing.T) {
	_, res := Estimated(KindDiscovery, nil)
	res[ResourceCPU] = 99

	_, again := Estimated(KindDiscovery, nil)
	if again[ResourceCPU] == 99 {
		t.Error("Estimated must not expose the shared table")
	}
}
