package pipeline

const (
	// maxErrorLen caps the failure reason stored on an event.
	maxErrorLen = 2000

	// reapplyPageSize is how many transactions ReapplyRules loads at a time
	// when no explicit ids are given.
	reapplyPageSize = 500
)
