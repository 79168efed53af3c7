package runtime

import (
	"fmt"

	modelpkg "trainsim.ai/internal/sim/world/kernel/model"
)

func (s *System) owned(id modelpkg.TransportID, requester string) (*Transport, error) {
	t, ok := s.transports[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, id)
	}
	if t.Owner != requester {
		return nil, fmt.Errorf("%w: transport %s", ErrNotOwner, id)
	}
	return t, nil
}

func (s *System) ForceStop(id modelpkg.TransportID, requester string) error {
	t, err := s.owned(id, requester)
	if err != nil {
		return err
	}
	t.Orders.ForceStop()
	return nil
}

// ClearForceStop resumes a stopped transport. Only its owner may do this.
func (s *System) ClearForceStop(id modelpkg.TransportID, requester string) error {
	t, err := s.owned(id, requester)
	if err != nil {
		return err
	}
	t.Orders.ClearForceStop()
	return nil
}

func (s *System) PushOrder(id modelpkg.TransportID, requester string, o modelpkg.MovementOrder) error {
	t, err := s.owned(id, requester)
	if err != nil {
		return err
	}
	t.Orders.Push(o)
	return nil
}
