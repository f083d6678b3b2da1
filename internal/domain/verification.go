package domain

// Outcome is the terminal verification state of a candidate.
type Outcome string

const (
	OutcomeVerified               Outcome = "verified"
	OutcomeRejectedLowCredibility Outcome = "rejected_low_credibility"
	OutcomeRejectedDuplicate      Outcome = "rejected_duplicate"
)

// CandidateUpdate is the verification result written back to a candidate.
type CandidateUpdate struct {
	CandidateID       int64
	VerificationScore float64
	IsVerified        bool
	Duplicate         bool
}

// VerificationBatch groups every write of one verification batch.
// Repositories must apply it atomically.
type VerificationBatch struct {
	Updates []CandidateUpdate
	Records []VerifiedRecord
}

// Empty reports whether the batch carries no writes.
func (b VerificationBatch) Empty() bool {
	return len(b.Updates) == 0 && len(b.Records) == 0
}
