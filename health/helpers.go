package health

import "time"

// NewHealthy creates a new healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, StatusHealthy, message)
}

// NewUnhealthy creates a new unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StatusUnhealthy, message)
}

// NewDegraded creates a new degraded status
func NewDegraded(component, message string) Status {
	return newStatus(component, StatusDegraded, message)
}

func newStatus(component, status, message string) Status {
	return Status{
		Component: component,
		Healthy:   status == StatusHealthy,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Aggregate rolls sub-statuses up for redundant inputs: the system is
// healthy when every sub-status is healthy, degraded when at least one is
// healthy, and unhealthy when none are. Disabled transports are not
// reported, so an empty set means nothing is feeding the pipeline.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewUnhealthy(component, "No inputs reporting")
	}

	healthy := 0
	for _, sub := range subStatuses {
		if sub.IsHealthy() {
			healthy++
		}
	}

	var status Status
	switch {
	case healthy == len(subStatuses):
		status = NewHealthy(component, "All inputs connected")
	case healthy > 0:
		status = NewDegraded(component, "Some inputs are not connected")
	default:
		status = NewUnhealthy(component, "No input connected")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)

	return status
}
