package scheduler

import "testing"

func TestAdmit(t *testing.T) {
	scores := PredictorFunc(func(kind Kind, params Params) (float64, bool) {
		s, ok := params["score"].(float64)
		return s, ok
	})

	tests := []struct {
		name      string
		ready     []*Task
		free      map[string]float64
		limit     int
		predictor Predictor
		want      string
	}{
		{
			name: "priority before insertion order",
			ready: []*Task{
				{ID: "normal", Priority: PriorityNormal},
				{ID: "high", Priority: PriorityHigh},
			},
			limit: 1,
			want:  "high",
		},
		{
			name: "score breaks ties within a priority",
			ready: []*Task{
				{ID: "dull", Priority: PriorityNormal, Params: Params{"score": 20.0}},
				{ID: "viral", Priority: PriorityNormal, Params: Params{"score": 90.0}},
			},
			limit:     1,
			predictor: scores,
			want:      "viral",
		},
		{
			name: "missing score is neutral",
			ready: []*Task{
				{ID: "below", Priority: PriorityNormal, Params: Params{"score": 40.0}},
				{ID: "neutral", Priority: PriorityNormal},
			},
			limit:     1,
			predictor: scores,
			want:      "neutral",
		},
		{
			name: "equal scores keep input order",
			ready: []*Task{
				{ID: "first", Priority: PriorityLow},
				{ID: "second", Priority: PriorityLow},
			},
			limit: 1,
			want:  "first",
		},
		{
			name: "skip what does not fit and keep packing",
			ready: []*Task{
				{ID: "big", Priority: PriorityHigh, Resources: Resources{"cpu": 3}},
				{ID: "small", Priority: PriorityLow, Resources: Resources{"cpu": 1}},
			},
			free:  map[string]float64{"cpu": 2},
			limit: 3,
			want:  "small",
		},
		{
			name: "tentative reservations accumulate",
			ready: []*Task{
				{ID: "a", Priority: PriorityNormal, Resources: Resources{"cpu": 2}},
				{ID: "b", Priority: PriorityNormal, Resources: Resources{"cpu": 2}},
			},
			free:  map[string]float64{"cpu": 2},
			limit: 3,
			want:  "a",
		},
		{
			name: "stop at the ceiling",
			ready: []*Task{
				{ID: "a", Priority: PriorityNormal},
				{ID: "b", Priority: PriorityNormal},
				{ID: "c", Priority: PriorityNormal},
			},
			limit: 2,
			want:  "a,b",
		},
		{
			name:  "zero limit admits nothing",
			ready: []*Task{{ID: "a", Priority: PriorityNormal}},
			limit: 0,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			free := tt.free
			if free == nil {
				free = map[string]float64{}
			}
			before := len(free)

			admitted := Admit(tt.ready, free, tt.limit, tt.predictor)
			tasks := make([]*Task, len(admitted))
			for i, a := range admitted {
				tasks[i] = a.Task
			}
			if got := ids(tasks); got != tt.want {
				t.Errorf("Admit() = %q, want %q", got, tt.want)
			}
			if len(free) != before {
				t.Error("Admit must not modify free")
			}
		})
	}
}

func TestDesirabilityClamps(t *testing.T) {
	tests := []struct {
		score float64
		ok    bool
		want  float64
	}{
		{150, true, 100},
		{-5, true, 0},
		{73, true, 73},
		{10, false, NeutralScore},
	}
	for _, tt := range tests {
		p := PredictorFunc(func(Kind, Params) (float64, bool) { return tt.score, tt.ok })
		if got := Desirability(p, &Task{}); got != tt.want {
			t.Errorf("Desirability(%v,%v) = %v, want %v", tt.score, tt.ok, got, tt.want)
		}
	}
	if got := Desirability(nil, &Task{}); got != NeutralScore {
		t.Errorf("nil predictor should give %v, got %v", NeutralScore, got)
	}
}
