package update

// OutcomeStatus is the result class of one target in a run.
type OutcomeStatus string

const (
	// OutcomeSuccess means the update was applied.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeFailed means the update was attempted and failed.
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomeSkipped means nothing was attempted.
	OutcomeSkipped OutcomeStatus = "skipped"
)

// ReasonUnknown is reported when a failure carries no structured payload.
const ReasonUnknown = "unknown"

// Outcome is the per-target result of an update run.
type Outcome struct {
	Target  string
	Status  OutcomeStatus
	Version string
	// Payload is the strategy result on success.
	Payload any
	// Reason explains a failure or a skip.
	Reason any
	// Unignorable marks a failure that fails the whole run.
	Unignorable bool
}

// RunReport is the ordered, aggregated result of one update run.
type RunReport struct {
	Outcomes     []Outcome
	OverallError bool
	Restart      RestartType
}

// Add appends an outcome and folds its failure flag into the aggregate.
func (r *RunReport) Add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.OverallError = r.OverallError || (o.Status == OutcomeFailed && o.Unignorable)
}

// Outcome returns the outcome recorded for target.
func (r *RunReport) Outcome(target string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Target == target {
			return o, true
		}
	}

	return Outcome{}, false
}

// Results renders attempted targets as target -> {status, payload|reason} for observers.
// Skipped targets are left out, they carry no result.
func (r *RunReport) Results() map[string]any {
	results := make(map[string]any, len(r.Outcomes))

	for _, o := range r.Outcomes {
		switch o.Status {
		case OutcomeSuccess:
			results[o.Target] = map[string]any{"status": string(o.Status), "result": o.Payload}
		case OutcomeFailed:
			results[o.Target] = map[string]any{"status": string(o.Status), "result": o.Reason}
		case OutcomeSkipped:
		}
	}

	return results
}
