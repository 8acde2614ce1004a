package enum

type PollingStatus string

const (
	PollingPending   PollingStatus = "pending"
	PollingActive    PollingStatus = "polling"
	PollingCompleted PollingStatus = "completed"
	PollingTimeout   PollingStatus = "timeout"
	PollingCancelled PollingStatus = "cancelled"
)

func (s PollingStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further ticks change the session.
func (s PollingStatus) IsTerminal() bool {
	return s == PollingCompleted || s == PollingTimeout || s == PollingCancelled
}

type PropagationStatus string

const (
	NotPropagated PropagationStatus = "not_propagated"
	Propagating   PropagationStatus = "propagating"
	Propagated    PropagationStatus = "propagated"
)

func (s PropagationStatus) String() string {
	return string(s)
}

type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
	StepWarning   StepStatus = "warning"
)
