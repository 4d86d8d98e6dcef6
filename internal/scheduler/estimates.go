package scheduler

import (
	"time"

	"github.com/spf13/cast"
)

// Resource names known to the default ledger.
const (
	ResourceCPU          = "cpu_cores"
	ResourceMemory       = "memory_gb"
	ResourceYouTubeQuota = "api_quota_youtube"
	ResourceOpenAIQuota  = "api_quota_openai"
	ResourceStorage      = "storage_gb"
)

// DefaultCapacities returns the default resource ceilings.
func DefaultCapacities() map[string]float64 {
	return map[string]float64{
		ResourceCPU:          4,
		ResourceMemory:       8,
		ResourceYouTubeQuota: 10000,
		ResourceOpenAIQuota:  1000000,
		ResourceStorage:      100,
	}
}

// Estimate is the heuristic cost of one kind of task.
type Estimate struct {
	Priority  Priority // Used when a submission leaves priority unset
	Duration  time.Duration
	Resources Resources

	// Multipliers applied to params of the same name.
	PerItem        time.Duration // "batch_size" or "max_videos"
	PerMediaSecond time.Duration // "video_duration"
	PerMegabyte    time.Duration // "file_size_mb"
	ItemResources  Resources     // Added per item, on top of Resources
}

var estimates = map[Kind]Estimate{
	KindDiscovery: {
		Priority:      PriorityHigh,
		Duration:      120 * time.Second,
		Resources:     Resources{ResourceCPU: 0.5, ResourceMemory: 1, ResourceYouTubeQuota: 100},
		PerItem:       5 * time.Second,
		ItemResources: Resources{ResourceYouTubeQuota: 10},
	},
	KindBatchProcessing: {
		Priority:       PriorityNormal,
		Duration:       600 * time.Second,
		Resources:      Resources{ResourceCPU: 2, ResourceMemory: 4, ResourceStorage: 1, ResourceOpenAIQuota: 1000},
		PerItem:        30 * time.Second,
		PerMediaSecond: 2 * time.Second,
		ItemResources:  Resources{ResourceOpenAIQuota: 500, ResourceStorage: 0.5},
	},
	KindPublishScheduling: {
		Priority:    PriorityLow,
		Duration:    300 * time.Second,
		Resources:   Resources{ResourceCPU: 1, ResourceMemory: 2, ResourceYouTubeQuota: 50},
		PerMegabyte: 2 * time.Second,
	},
	KindAnalysis: {
		Priority:  PriorityLow,
		Duration:  180 * time.Second,
		Resources: Resources{ResourceCPU: 0.2, ResourceMemory: 0.5, ResourceYouTubeQuota: 10},
	},
	KindEmergencyContent: {
		Priority:  PriorityEmergency,
		Duration:  300 * time.Second,
		Resources: Resources{ResourceCPU: 1, ResourceMemory: 2, ResourceYouTubeQuota: 100, ResourceOpenAIQuota: 500},
		PerItem:   60 * time.Second,
	},
	KindViralOptimization: {
		Priority:  PriorityHigh,
		Duration:  240 * time.Second,
		Resources: Resources{ResourceCPU: 0.5, ResourceMemory: 1, ResourceYouTubeQuota: 50, ResourceOpenAIQuota: 1000},
		PerItem:   20 * time.Second,
	},
}

// EstimateFor returns the table entry for kind.
func EstimateFor(kind Kind) (Estimate, bool) {
	e, ok := estimates[kind]
	return e, ok
}

// Estimated returns the duration and resources a task of kind with params is
// expected to need. Unknown kinds get one cpu core and one gigabyte for five
// minutes.
func Estimated(kind Kind, params Params) (time.Duration, Resources) {
	e, ok := estimates[kind]
	if !ok {
		return 300 * time.Second, Resources{ResourceCPU: 1, ResourceMemory: 1}
	}

	items := paramFloat(params, "batch_size")
	if items == 0 {
		items = paramFloat(params, "max_videos")
	}

	d := e.Duration
	d += time.Duration(items * float64(e.PerItem))
	d += time.Duration(paramFloat(params, "video_duration") * float64(e.PerMediaSecond))
	d += time.Duration(paramFloat(params, "file_size_mb") * float64(e.PerMegabyte))

	res := make(Resources, len(e.Resources))
	for name, qty := range e.Resources {
		res[name] = qty
	}
	for name, qty := range e.ItemResources {
		res[name] += qty * items
	}
	return d, res
}

// paramFloat reads a numeric param leniently; missing or malformed values are 0.
func paramFloat(params Params, key string) float64 {
	v, ok := params[key]
	if !ok {
		return 0
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || f < 0 {
		return 0
	}
	return f
}
