package council

import "math"

// Quorum modes.
const (
	QuorumMajority = "majority"
	QuorumFraction = "fraction"
)

// QuorumPolicy decides how many successes a council of N members needs.
// Immutable after startup.
type QuorumPolicy struct {
	// Mode is QuorumMajority or QuorumFraction.
	Mode string

	// Fraction is the required success fraction for QuorumFraction.
	Fraction float64
}

// Required returns the success count needed for acceptance with n members.
// Majority is strict: floor(n/2)+1, so 2 of 3, 3 of 4, 3 of 5.
func (q QuorumPolicy) Required(n int) int {
	if n <= 0 {
		return 0
	}

	if q.Mode == QuorumFraction && q.Fraction > 0 {
		required := int(math.Ceil(float64(n) * q.Fraction))
		if required < 1 {
			required = 1
		}
		if required > n {
			required = n
		}
		return required
	}

	return n/2 + 1
}

// Judge maps a success count onto the three-way verdict.
func (q QuorumPolicy) Judge(successes, n int) Verdict {
	switch {
	case successes >= q.Required(n):
		return VerdictAccepted
	case successes >= 1:
		return VerdictDegraded
	default:
		return VerdictFailed
	}
}
