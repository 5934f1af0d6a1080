package haul

import (
	"fmt"

	"colonysim/internal/sim/work"
)

// Stock counts one material a job wants delivered. Claimed units are on their
// way; Stored units have arrived.
type Stock struct {
	Item    string
	Need    int
	Stored  int
	Claimed int
}

// Remaining is what nobody has promised to deliver yet.
func (s *Stock) Remaining() int {
	if n := s.Need - s.Stored - s.Claimed; n > 0 {
		return n
	}
	return 0
}

// Missing ignores in-flight hauls.
func (s *Stock) Missing() int {
	if n := s.Need - s.Stored; n > 0 {
		return n
	}
	return 0
}

func (s *Stock) Full() bool { return s.Stored >= s.Need }

func (s *Stock) String() string {
	return fmt.Sprintf("%s %d/%d (+%d)", s.Item, s.Stored, s.Need, s.Claimed)
}

// QuotaClaim is a lambda claim over part of a stock's remaining need.
type QuotaClaim struct {
	Claim  *work.LambdaClaim
	Amount int
}

// ClaimQuota promises n units of the remaining need to w.
func (s *Stock) ClaimQuota(w *work.Work, n int) (*QuotaClaim, bool) {
	if n <= 0 {
		return nil, false
	}
	lc, ok := w.ClaimLambda("quota:"+s.Item,
		func() bool {
			if s.Remaining() < n {
				return false
			}
			s.Claimed += n
			return true
		},
		func() { s.Claimed -= n },
	)
	if !ok {
		return nil, false
	}
	return &QuotaClaim{Claim: lc, Amount: n}, true
}
