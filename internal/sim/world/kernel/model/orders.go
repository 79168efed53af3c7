package model

import "fmt"

type LoadPolicy uint8

const (
	NoLoad LoadPolicy = iota
	LoadAvailable
	LoadUntilFull
)

func (p LoadPolicy) String() string {
	switch p {
	case NoLoad:
		return "NO_LOAD"
	case LoadAvailable:
		return "LOAD_AVAILABLE"
	case LoadUntilFull:
		return "LOAD_UNTIL_FULL"
	}
	return fmt.Sprintf("LoadPolicy(%d)", uint8(p))
}

type UnloadPolicy uint8

const (
	NoUnload UnloadPolicy = iota
	UnloadAvailable
	UnloadUntilEmpty
)

func (p UnloadPolicy) String() string {
	switch p {
	case NoUnload:
		return "NO_UNLOAD"
	case UnloadAvailable:
		return "UNLOAD_AVAILABLE"
	case UnloadUntilEmpty:
		return "UNLOAD_UNTIL_EMPTY"
	}
	return fmt.Sprintf("UnloadPolicy(%d)", uint8(p))
}

// OrderAction is what a transport does at an order's destination. The zero
// value passes through without stopping.
type OrderAction struct {
	Stop   bool         `json:"stop"`
	Load   LoadPolicy   `json:"load,omitempty"`
	Unload UnloadPolicy `json:"unload,omitempty"`
}

func PassThrough() OrderAction { return OrderAction{} }

func StopWith(load LoadPolicy, unload UnloadPolicy) OrderAction {
	return OrderAction{Stop: true, Load: load, Unload: unload}
}

func (a OrderAction) String() string {
	if !a.Stop {
		return "PASS_THROUGH"
	}
	return fmt.Sprintf("STOP(%s,%s)", a.Load, a.Unload)
}

type MovementOrder struct {
	Destination StationID   `json:"destination"`
	Action      OrderAction `json:"action"`
}

func (o MovementOrder) String() string {
	return fmt.Sprintf("%s@%s", o.Action, o.Destination)
}

// MovementOrders is a non-empty circular list of orders plus a sticky
// force-stop flag. Build it with NewMovementOrders; the zero value has no
// current order.
type MovementOrders struct {
	orders    []MovementOrder
	current   int
	forceStop bool
}

func NewMovementOrders(first MovementOrder, rest ...MovementOrder) *MovementOrders {
	orders := make([]MovementOrder, 0, 1+len(rest))
	orders = append(orders, first)
	orders = append(orders, rest...)
	return &MovementOrders{orders: orders}
}

// RestoreMovementOrders rebuilds a sequence from persisted state. The index is
// taken modulo the list length.
func RestoreMovementOrders(orders []MovementOrder, current int, forceStop bool) (*MovementOrders, error) {
	if len(orders) == 0 {
		return nil, fmt.Errorf("movement orders: empty order list")
	}
	cp := make([]MovementOrder, len(orders))
	copy(cp, orders)
	current %= len(cp)
	if current < 0 {
		current += len(cp)
	}
	return &MovementOrders{orders: cp, current: current, forceStop: forceStop}, nil
}

func (m *MovementOrders) CurrentOrder() MovementOrder {
	return m.orders[m.current]
}

// Push appends to the end of the list; the current order does not change.
func (m *MovementOrders) Push(o MovementOrder) {
	m.orders = append(m.orders, o)
}

func (m *MovementOrders) AdvanceToNextOrder() {
	m.current = (m.current + 1) % len(m.orders)
}

// ForceStop suppresses movement until ClearForceStop. The order list is left
// alone.
func (m *MovementOrders) ForceStop() { m.forceStop = true }

// ClearForceStop is reserved for the transport's owner (the player or AI that
// issued the stop); the simulation step never calls it.
func (m *MovementOrders) ClearForceStop() { m.forceStop = false }

func (m *MovementOrders) IsStopped() bool { return m.forceStop }

func (m *MovementOrders) Len() int { return len(m.orders) }

func (m *MovementOrders) CurrentIndex() int { return m.current }

func (m *MovementOrders) Orders() []MovementOrder {
	out := make([]MovementOrder, len(m.orders))
	copy(out, m.orders)
	return out
}
