package monitor

// Diff compares the previous and current snapshots of a project and
// returns the change event to announce, or nil when there is nothing
// to say.
//
// Rules:
//   - no previous snapshot: one Baseline event listing every entry
//   - label absent from previous: Added
//   - label present with a different status: Changed (old kept)
//   - label present only in previous: not reported (silent
//     disappearance is tolerated to avoid noise on transient provider
//     omissions)
func Diff(projectID, projectName string, prev ProjectSnapshot, hasPrev bool, cur ProjectSnapshot) *ChangeEvent {
	if !hasPrev {
		if len(cur) == 0 {
			return nil
		}
		ev := &ChangeEvent{ProjectID: projectID, ProjectName: projectName, Kind: KindBaseline}
		for _, e := range cur {
			ev.Changes = append(ev.Changes, Change{Label: e.Label, New: e.Status})
		}
		return ev
	}

	old := make(map[string]SaleStatus, len(prev))
	for _, e := range prev {
		old[e.Label] = e.Status
	}

	var changes []Change
	for _, e := range cur {
		prevStatus, seen := old[e.Label]
		switch {
		case !seen:
			changes = append(changes, Change{Label: e.Label, New: e.Status})
		case prevStatus != e.Status:
			changes = append(changes, Change{Label: e.Label, Old: prevStatus, New: e.Status})
		}
	}
	if len(changes) == 0 {
		return nil
	}
	return &ChangeEvent{ProjectID: projectID, ProjectName: projectName, Kind: KindDelta, Changes: changes}
}
