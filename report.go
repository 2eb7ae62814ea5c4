package lockverify

import (
	"time"

	"github.com/jerry-enebeli/lockverify/model"
)

// Scenario names, in run order.
const (
	ScenarioPrepare  = "prepare"
	ScenarioSubmit   = "submit"
	ScenarioResync   = "resync"
	ScenarioValidate = "validate"
)

type ScenarioStatus string

const (
	StatusPassed  ScenarioStatus = "passed"
	StatusFailed  ScenarioStatus = "failed"
	StatusSkipped ScenarioStatus = "skipped"
)

type ScenarioResult struct {
	Name     string         `json:"name"`
	Status   ScenarioStatus `json:"status"`
	Attempts int            `json:"attempts"`
	Duration time.Duration  `json:"duration"`
	Err      error          `json:"-"`
}

// Report is the outcome of one verification run.
type Report struct {
	RunID     string           `json:"run_id"`
	LockID    model.LockID     `json:"lock_id"`
	Scenarios []ScenarioResult `json:"scenarios"`
	Err       error            `json:"-"`
}

func (r *Report) add(result ScenarioResult) {
	r.Scenarios = append(r.Scenarios, result)
}

// Passed reports whether every scenario passed.
func (r *Report) Passed() bool {
	return r.Err == nil
}

// Scenario returns the result for name.
func (r *Report) Scenario(name string) (ScenarioResult, bool) {
	for _, s := range r.Scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return ScenarioResult{}, false
}
