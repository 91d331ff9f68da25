package aggregation

// CycleState is everything derived from the processed arrays. It is recomputed
// from lengths after every commit and never stored.
type CycleState struct {
	TotalOuters     int  `json:"total_outers"`
	TotalParents    int  `json:"total_parents"`
	CompletedCycles int  `json:"completed_cycles"`
	ExpectingParent bool `json:"expecting_parent"`
	LimitReached    bool `json:"limit_reached"`
	// RemainingInCycle is how many child scans are missing from the open cycle.
	RemainingInCycle int `json:"remaining_in_cycle"`
}

func StateOf(s *Session) CycleState {
	if s == nil {
		return CycleState{}
	}
	n := s.OutersPerAggregation
	outers, parents := s.TotalOuters(), s.TotalParents()
	st := CycleState{
		TotalOuters:     outers,
		TotalParents:    parents,
		ExpectingParent: ExpectingParent(outers, parents, n),
		LimitReached:    LimitReached(s.AggregationType, outers, parents, n, s.PackagesPerPallet),
	}
	if n > 0 {
		st.CompletedCycles = outers / n
		if rem := outers % n; rem != 0 {
			st.RemainingInCycle = n - rem
		}
	}
	return st
}

// ExpectingParent is true iff the last cycle is full and has no parent yet.
func ExpectingParent(totalOuters, totalParents, n int) bool {
	if n <= 0 || totalOuters <= 0 {
		return false
	}
	return totalOuters%n == 0 && totalOuters/n > totalParents
}

// LimitReached only applies to FULL sessions: every cycle is capped and the
// pallet already holds packagesPerPallet packages.
func LimitReached(t Type, totalOuters, totalParents, n, packagesPerPallet int) bool {
	if t != TypeFull || n <= 0 || packagesPerPallet <= 0 {
		return false
	}
	allCapped := totalOuters%n == 0 && totalOuters/n == totalParents
	return allCapped && totalParents >= packagesPerPallet
}

// ChildSlice returns the child codes of cycle k (1-based).
func ChildSlice(outers []string, k, n int) ([]string, error) {
	if k <= 0 || n <= 0 {
		return nil, NewError(KindInvalidArgument, "invalid cycle %d of size %d", k, n)
	}
	start, end := (k-1)*n, k*n
	if end > len(outers) {
		return nil, NewError(KindInconsistentState, "cycle %d needs %d outer codes, session has %d", k, end, len(outers))
	}
	out := make([]string, n)
	copy(out, outers[start:end])
	return out, nil
}

// CycleCompletion describes the cycle closed by a parent commit.
type CycleCompletion struct {
	CycleNumber  int      `json:"cycle_number"`
	ParentCode   string   `json:"parent_code"`
	ChildCodes   []string `json:"child_codes"`
	TotalOuters  int      `json:"total_outers"`
	TotalParents int      `json:"total_parents"`
	Level        Level    `json:"level"`
}

// CompletionAfterParent derives the completed cycle from a post-commit session
// whose last parent is parentCode.
func CompletionAfterParent(s *Session, parentCode string) (*CycleCompletion, error) {
	k := s.TotalParents()
	if k == 0 || s.ProcessedParentCodes[k-1] != parentCode {
		return nil, NewError(KindInconsistentState, "parent %q is not the last committed parent", parentCode)
	}
	children, err := ChildSlice(s.ProcessedOuterCodes, k, s.OutersPerAggregation)
	if err != nil {
		return nil, err
	}
	return &CycleCompletion{
		CycleNumber:  k,
		ParentCode:   parentCode,
		ChildCodes:   children,
		TotalOuters:  s.TotalOuters(),
		TotalParents: k,
		Level:        CycleLevel(s.AggregationType),
	}, nil
}

// CheckCommit holds the conditions the atomic commit enforces. Store
// implementations that cannot express them in a single statement evaluate this
// under their own lock.
func CheckCommit(s *Session, value string, role Role) error {
	if s == nil {
		return NewError(KindSessionNotFound, "session not found")
	}
	if s.Status != StatusOpen {
		return NewError(KindSessionNotOpen, "session is %s", s.Status)
	}
	if s.Contains(value) {
		return NewError(KindDuplicateInSession, "code %s already scanned in this session", value)
	}
	if role == RoleTarget {
		if s.AggregationType != TypeFull {
			return NewError(KindWrongType, "only FULL sessions take a target pallet")
		}
		if s.HasTarget() {
			return NewError(KindWrongType, "session already has target pallet %s", *s.TargetCode)
		}
		return nil
	}
	if s.AggregationType == TypeFull && !s.HasTarget() {
		return NewError(KindWrongType, "first scan of a FULL session must be the target pallet")
	}
	st := StateOf(s)
	if st.LimitReached {
		return NewError(KindLimitReached, "all %d packages are aggregated; finalize the session", s.PackagesPerPallet)
	}
	switch role {
	case RoleParent:
		if !st.ExpectingParent {
			return NewError(KindWrongType, "session is not expecting a parent code")
		}
	case RoleOuter:
		if st.ExpectingParent {
			return NewError(KindWrongType, "session is expecting a parent code for cycle %d", st.CompletedCycles)
		}
	default:
		return NewError(KindInvalidArgument, "unknown role %q", role)
	}
	return nil
}

// ApplyCommit mutates s in place. It returns the closed cycle for parent commits.
func ApplyCommit(s *Session, value string, role Role) (*CycleCompletion, error) {
	if err := CheckCommit(s, value, role); err != nil {
		return nil, err
	}
	switch role {
	case RoleTarget:
		v := value
		s.TargetCode = &v
		return nil, nil
	case RoleOuter:
		s.ProcessedOuterCodes = append(s.ProcessedOuterCodes, value)
		return nil, nil
	default:
		s.ProcessedParentCodes = append(s.ProcessedParentCodes, value)
		return CompletionAfterParent(s, value)
	}
}

// CheckFinalizable evaluates the finalization preconditions in order.
func CheckFinalizable(s *Session) error {
	if s == nil {
		return NewError(KindSessionNotFound, "session not found")
	}
	if s.Status != StatusOpen {
		return NewError(KindSessionNotOpen, "session is %s", s.Status)
	}
	st := StateOf(s)
	if st.RemainingInCycle > 0 {
		return NewError(KindPartialCycle, "%d outer codes remaining to complete cycle %d", st.RemainingInCycle, st.CompletedCycles+1)
	}
	switch {
	case st.CompletedCycles > st.TotalParents:
		return NewError(KindMissingParents, "%d completed cycles are missing their parent code", st.CompletedCycles-st.TotalParents)
	case st.TotalParents > st.CompletedCycles:
		return NewError(KindInconsistentState, "%d parent codes recorded for %d completed cycles", st.TotalParents, st.CompletedCycles)
	}
	if s.AggregationType == TypeFull {
		if !s.HasTarget() {
			return NewError(KindInconsistentState, "FULL session has no target pallet")
		}
		if st.TotalParents != s.PackagesPerPallet {
			return NewError(KindPackageShortfall, "%d of %d packages aggregated, %d short", st.TotalParents, s.PackagesPerPallet, s.PackagesPerPallet-st.TotalParents)
		}
	}
	return nil
}
