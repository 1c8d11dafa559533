package model

// transitions is an allowed-transition table for a closed status enum.
type transitions[S ~string] map[S][]S

func (t transitions[S]) allows(from, to S) bool {
	for _, s := range t[from] {
		if s == to {
			return true
		}
	}
	return false
}

// sources returns every status that may move to `to`.
func (t transitions[S]) sources(to S) []S {
	var out []S
	for from, targets := range t {
		for _, s := range targets {
			if s == to {
				out = append(out, from)
				break
			}
		}
	}
	return out
}

// DonationStatus is the lifecycle state of a donation.
type DonationStatus string

const (
	DonationPending    DonationStatus = "Pending"
	DonationSuccessful DonationStatus = "Successful"
	DonationFailed     DonationStatus = "Failed"
)

var donationTransitions = transitions[DonationStatus]{
	DonationPending: {DonationSuccessful, DonationFailed},
}

// Valid reports whether s is a known donation status.
func (s DonationStatus) Valid() bool {
	switch s {
	case DonationPending, DonationSuccessful, DonationFailed:
		return true
	}
	return false
}

// CanTransition reports whether s may move to `to`.
func (s DonationStatus) CanTransition(to DonationStatus) bool {
	return donationTransitions.allows(s, to)
}

// DonationSources lists the statuses from which `to` is reachable.
func DonationSources(to DonationStatus) []DonationStatus {
	return donationTransitions.sources(to)
}

// PujaStatus is the lifecycle state of a cow puja booking.
type PujaStatus string

const (
	PujaAwaitingPayment   PujaStatus = "AwaitingPayment"
	PujaSuccessfulPayment PujaStatus = "SuccessfulPayment"
	PujaDateConfirmed     PujaStatus = "DateConfirmed"
	PujaCompleted         PujaStatus = "Completed"
	PujaFailed            PujaStatus = "Failed"
	PujaAborted           PujaStatus = "Aborted"
	PujaCancelled         PujaStatus = "Cancelled"
)

var pujaTransitions = transitions[PujaStatus]{
	PujaAwaitingPayment:   {PujaSuccessfulPayment, PujaFailed, PujaAborted, PujaCancelled},
	PujaSuccessfulPayment: {PujaDateConfirmed, PujaCancelled},
	PujaDateConfirmed:     {PujaCompleted, PujaCancelled},
}

// Valid reports whether s is a known puja status.
func (s PujaStatus) Valid() bool {
	switch s {
	case PujaAwaitingPayment, PujaSuccessfulPayment, PujaDateConfirmed, PujaCompleted,
		PujaFailed, PujaAborted, PujaCancelled:
		return true
	}
	return false
}

// CanTransition reports whether s may move to `to`.
func (s PujaStatus) CanTransition(to PujaStatus) bool {
	return pujaTransitions.allows(s, to)
}

// Terminal reports whether no further transition is possible.
func (s PujaStatus) Terminal() bool {
	return len(pujaTransitions[s]) == 0
}

// PujaSources lists the statuses from which `to` is reachable.
func PujaSources(to PujaStatus) []PujaStatus {
	return pujaTransitions.sources(to)
}
