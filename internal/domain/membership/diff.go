// Package membership computes membership changes between two lists of user ids.
package membership

import "github.com/samber/lo"

// Delta is the change set a single update or enrollment call produces.
type Delta struct {
	AddedMentors        []string
	RemovedMentors      []string
	AddedParticipants   []string
	RemovedParticipants []string
}

func (d Delta) Empty() bool {
	return len(d.AddedMentors) == 0 && len(d.RemovedMentors) == 0 &&
		len(d.AddedParticipants) == 0 && len(d.RemovedParticipants) == 0
}

// Diff returns the ids present only in next (added) and only in prev (removed).
// Both lists are treated as sets; nil is the empty set.
func Diff(prev, next []string) (added, removed []string) {
	removed, added = lo.Difference(lo.Uniq(prev), lo.Uniq(next))
	if added == nil {
		added = []string{}
	}
	if removed == nil {
		removed = []string{}
	}
	return added, removed
}

func MentorDelta(prev, next []string) Delta {
	added, removed := Diff(prev, next)
	return Delta{AddedMentors: added, RemovedMentors: removed}
}

func ParticipantDelta(prev, next []string) Delta {
	added, removed := Diff(prev, next)
	return Delta{AddedParticipants: added, RemovedParticipants: removed}
}
