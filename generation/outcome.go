package generation

// Outcome 是生成流程的結束狀態，只用於日誌
type Outcome string

// 同步生成
const (
	OutcomeSucceeded         Outcome = "succeeded"
	OutcomeTimedOut          Outcome = "timed_out"
	OutcomeExternalError     Outcome = "external_error"
	OutcomeExtractionFailed  Outcome = "extraction_failed"
	OutcomePersistenceFailed Outcome = "persistence_failed"
	OutcomeRejected          Outcome = "rejected"
)

// webhook 回呼
const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeFailureRecorded  Outcome = "failure_recorded"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeAlreadyFinalized Outcome = "already_finalized"
	OutcomeError            Outcome = "error"
)
