package fraud

import (
	"errors"
	"fmt"
)

// Kind classifies why a pass-level operation failed.
type Kind string

const (
	// KindConfiguration covers missing credentials, disconnected accounts
	// and invalid tenant settings. Not retried automatically.
	KindConfiguration Kind = "configuration"
	// KindExternalService covers ads API failures.
	KindExternalService Kind = "external_service"
	// KindDataStore covers ledger and alert store failures.
	KindDataStore Kind = "data_store"
	// KindValidation covers bad caller input.
	KindValidation Kind = "validation"
	// KindConflict is returned when another pass holds the account.
	KindConflict Kind = "conflict"
)

// Stages reported in StageError.
const (
	StageConfiguration = "configuration"
	StageLock          = "lock"
	StageAggregate     = "aggregate"
	StageDedup         = "dedup"
	StageReconcile     = "reconcile"
	StagePersist       = "persist"
	StageWasteAnalysis = "waste_analysis"
	StageApplyNegative = "apply_negative_keywords"
)

// StageError reports which stage of an operation failed and why.
type StageError struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(kind Kind, stage string, err error) error {
	return &StageError{Kind: kind, Stage: stage, Err: err}
}

// KindOf returns the Kind of err, or "" when err is not a StageError.
func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// outcome is the metric label for a finished operation.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if k := KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
