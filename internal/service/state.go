package service

import "fixly/internal/models"

// transitions is the adjacency table of the booking state machine. Every
// status write goes through canTransition; there are no other paths.
var transitions = map[string][]string{
	models.StatusPending:         {models.StatusAccepted, models.StatusRejected},
	models.StatusAccepted:        {models.StatusInProgress, models.StatusWaitingApproval},
	models.StatusInProgress:      {models.StatusCompleted, models.StatusWaitingApproval},
	models.StatusWaitingApproval: {models.StatusInProgress, models.StatusCancelled},
}

// genericUpdateEdges is the subset of edges the generic status update may
// drive. Specialized operations (start, revise, approve) own the rest.
var genericUpdateEdges = map[string][]string{
	models.StatusPending:    {models.StatusAccepted, models.StatusRejected},
	models.StatusInProgress: {models.StatusCompleted},
}

func canTransition(from, to string) bool {
	return containsEdge(transitions, from, to)
}

func canGenericUpdate(from, to string) bool {
	return containsEdge(genericUpdateEdges, from, to)
}

func containsEdge(table map[string][]string, from, to string) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

func isKnownStatus(status string) bool {
	for _, s := range models.Statuses() {
		if s == status {
			return true
		}
	}
	return false
}
