package app

import (
	"time"

	"github.com/Discovita/testing-grounds/pkg/domain"
)

// MilestoneOf returns the milestone that owns the named checkpoint.
func (s Schema) MilestoneOf(name string) (MilestoneDef, bool) {
	for _, m := range s.Milestones {
		for _, cp := range m.Checkpoints {
			if cp.Name == name {
				return m, true
			}
		}
	}
	return MilestoneDef{}, false
}

// activeCheckpoint returns the first unset checkpoint of the journey's
// current milestone.
func activeCheckpoint(j domain.Journey, s Schema) (CheckpointDef, bool) {
	m, ok := s.Milestone(j.CurrentMilestone)
	if !ok {
		return CheckpointDef{}, false
	}
	return m.NextCheckpoint(j)
}

// stampMilestone records completion of the milestone owning the named
// checkpoint once all of its checkpoints are set. It is the only writer of
// the per-milestone completed flags and never moves the current milestone or
// the journey status; advancing is a separate, explicit transition.
func stampMilestone(j *domain.Journey, s Schema, checkpointName string, now time.Time) bool {
	m, ok := s.MilestoneOf(checkpointName)
	if !ok {
		return false
	}
	if m.Completed(*j) || !m.Satisfied(*j) {
		return false
	}
	m.MarkCompleted(j, now)
	j.UpdatedAt = now
	return true
}

// advanceJourney moves an in-progress journey to the next milestone. The
// current milestone must have every checkpoint set and a further milestone
// must exist.
func advanceJourney(j *domain.Journey, s Schema, now time.Time) error {
	if j.Status != domain.StatusInProgress {
		return ErrInvalidTransition
	}
	m, ok := s.Milestone(j.CurrentMilestone)
	if !ok || !m.Satisfied(*j) {
		return ErrInvalidTransition
	}
	if j.CurrentMilestone >= s.FinalMilestone() {
		return ErrInvalidTransition
	}
	j.CurrentMilestone++
	j.UpdatedAt = now
	return nil
}

// completeJourney marks an in-progress journey completed. The journey must
// be on the final milestone with every checkpoint of it set.
func completeJourney(j *domain.Journey, s Schema, now time.Time) error {
	if j.Status != domain.StatusInProgress {
		return ErrInvalidTransition
	}
	if j.CurrentMilestone != s.FinalMilestone() {
		return ErrInvalidTransition
	}
	final, ok := s.Milestone(s.FinalMilestone())
	if !ok || !final.Satisfied(*j) {
		return ErrInvalidTransition
	}
	j.Status = domain.StatusCompleted
	j.UpdatedAt = now
	return nil
}

// abandonJourney marks an in-progress journey abandoned. Abandoned is
// absorbing: no transition leads out of it.
func abandonJourney(j *domain.Journey, now time.Time) error {
	if j.Status != domain.StatusInProgress {
		return ErrInvalidTransition
	}
	j.Status = domain.StatusAbandoned
	j.UpdatedAt = now
	return nil
}
