package types

// SweepReport summarises a batch job run.
type SweepReport struct {
	Job      string   `json:"job"`
	Scanned  int      `json:"scanned"`
	Migrated int      `json:"migrated"`
	Failures []string `json:"failures"`
}

// Fail records a per-item failure.
func (r *SweepReport) Fail(msg string) {
	r.Failures = append(r.Failures, msg)
}
