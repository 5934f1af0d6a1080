package work

import "colonysim/internal/sim/world"

// Claim is a reservation released exactly once, either by the task that made
// it or by the Work's cleanup. Only ItemClaim and LambdaClaim implement it.
type Claim interface {
	release()
}

// ItemClaim holds Amount units of a floor stack so no other work can claim them.
type ItemClaim struct {
	Item   *world.Item
	Amount int
}

func (c *ItemClaim) release() { c.Item.Unreserve(c.Amount) }

// LambdaClaim wraps an arbitrary acquire/release pair, e.g. a single builder slot.
type LambdaClaim struct {
	Name      string
	onRelease func()
}

func (c *LambdaClaim) release() {
	if c.onRelease != nil {
		c.onRelease()
	}
}
