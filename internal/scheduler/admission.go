package scheduler

import "sort"

// NeutralScore is the desirability of a task no predictor has an opinion on.
const NeutralScore = 50.0

// Predictor scores how desirable running a task is, in [0,100].
// ok=false means the predictor has no opinion for this kind.
type Predictor interface {
	Score(kind Kind, params Params) (score float64, ok bool)
}

// PredictorFunc adapts a function to the Predictor interface.
type PredictorFunc func(kind Kind, params Params) (float64, bool)

func (f PredictorFunc) Score(kind Kind, params Params) (float64, bool) { return f(kind, params) }

// Desirability returns the clamped predictor score or NeutralScore.
func Desirability(p Predictor, task *Task) float64 {
	if p == nil {
		return NeutralScore
	}
	score, ok := p.Score(task.Kind, task.Params)
	if !ok {
		return NeutralScore
	}
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}

// Admission is one task chosen to run this round.
type Admission struct {
	Task  *Task
	Score float64
}

// Admit chooses which ready tasks run this round.
//
// Tasks are ordered by (priority desc, desirability desc), ties keeping their
// input order, then packed greedily: a task that does not fit the capacity left
// by earlier picks is skipped, not blocking later ones. At most limit tasks are
// returned. free is not modified.
func Admit(ready []*Task, free map[string]float64, limit int, predictor Predictor) []Admission {
	if limit <= 0 || len(ready) == 0 {
		return nil
	}

	candidates := make([]Admission, len(ready))
	for i, t := range ready {
		candidates[i] = Admission{Task: t, Score: Desirability(predictor, t)}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Task.Priority != b.Task.Priority {
			return a.Task.Priority > b.Task.Priority
		}
		return a.Score > b.Score
	})

	remaining := make(map[string]float64, len(free))
	for name, qty := range free {
		remaining[name] = qty
	}

	var admitted []Admission
	for _, c := range candidates {
		if len(admitted) >= limit {
			break
		}
		if !fits(c.Task.Resources, remaining) {
			continue
		}
		for name, qty := range c.Task.Resources {
			remaining[name] -= qty
		}
		admitted = append(admitted, c)
	}
	return admitted
}
