package rpa

var transitions = map[Status][]Status{
	StatusQueued:          {StatusRunning, StatusCancelled},
	StatusRunning:         {StatusSucceeded, StatusFailedPermanent, StatusFailedRetryable},
	StatusFailedRetryable: {StatusQueued, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
