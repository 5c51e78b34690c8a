package status

// Status is the persisted state of a download task.
type Status string

const (
	Pending     Status = "pending"
	Downloading Status = "downloading"
	Retrying    Status = "retrying"
	Paused      Status = "paused"
	Completed   Status = "completed"
	Failed      Status = "failed"
)

// All lists every status in lifecycle order.
var All = []Status{Pending, Downloading, Retrying, Paused, Completed, Failed}

// IsTerminal reports whether the scheduler will never pick the task up again on its own.
func (s Status) IsTerminal() bool {
	return s == Completed || s == Failed
}

// CanPause reports whether a task in this state may be parked.
func (s Status) CanPause() bool {
	return s == Pending || s == Retrying
}

// CanResume reports whether an explicit resume is allowed.
func (s Status) CanResume() bool {
	return s == Paused || s == Failed
}

// Recoverable reports whether the task is requeued on startup, including a task that
// was waiting out its retry delay.
func (s Status) Recoverable() bool {
	return s == Pending || s == Downloading || s == Paused || s == Retrying
}

func (s Status) Valid() bool {
	for _, st := range All {
		if st == s {
			return true
		}
	}

	return false
}
