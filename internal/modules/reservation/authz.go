package reservation

import "smartcampus/internal/domain"

// capabilities is what an actor may do to one reservation.
type capabilities struct {
	admin         bool
	resourceOwner bool
	requester     bool
}

func capabilitiesOf(actor domain.Actor, r *domain.Reservation, res *domain.Resource) capabilities {
	return capabilities{
		admin:         actor.IsAdmin(),
		resourceOwner: res != nil && res.IsOwnedBy(actor.UserID),
		requester:     r != nil && r.UserID == actor.UserID,
	}
}

func (c capabilities) canDecide() bool { return c.admin || c.resourceOwner }

func (c capabilities) canCancel() bool { return c.admin || c.requester }

func (c capabilities) canView() bool { return c.admin || c.resourceOwner || c.requester }

func (c capabilities) canReschedule() bool { return c.requester }
