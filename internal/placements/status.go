package placements

import "github.com/slotmarket/backend/internal/models"

// Side is the marketplace side acting on a placement.
type Side int

const (
	SideNone Side = iota
	SideSponsor
	SidePublisher
)

var publisherMoves = map[models.PlacementStatus][]models.PlacementStatus{
	models.PlacementPending:  {models.PlacementApproved, models.PlacementRejected},
	models.PlacementApproved: {models.PlacementActive},
	models.PlacementActive:   {models.PlacementCompleted},
}

var sponsorMoves = map[models.PlacementStatus][]models.PlacementStatus{
	models.PlacementPending: {models.PlacementRejected},
}

// CanTransition reports whether side may move a placement from one status to another.
func CanTransition(side Side, from, to models.PlacementStatus) bool {
	var moves map[models.PlacementStatus][]models.PlacementStatus
	switch side {
	case SidePublisher:
		moves = publisherMoves
	case SideSponsor:
		moves = sponsorMoves
	default:
		return false
	}
	for _, s := range moves[from] {
		if s == to {
			return true
		}
	}
	return false
}

// releasesSlot reports whether entering status frees the ad slot.
func releasesSlot(status models.PlacementStatus) bool {
	return status == models.PlacementRejected
}
