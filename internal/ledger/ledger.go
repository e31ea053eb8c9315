package ledger

import "time"

const (
	PointsPerCompletion = 10
	StreakWindow        = 24 * time.Hour
)

// Stats is the rolling snapshot kept per user.
type Stats struct {
	TotalTasksCompleted int
	CurrentStreak       int
	LongestStreak       int
	Points              int
	LastCompletedAt     *time.Time
}

// Achievement is a catalog entry. A nil threshold never matches.
type Achievement struct {
	ID             uint64
	Name           string
	Description    string
	BadgeIcon      string
	RequiredTasks  *int
	RequiredStreak *int
}

// ApplyCompletion returns the stats after one task is completed at now.
// The streak continues when the previous completion is at most 24 elapsed
// hours old, regardless of calendar days.
func ApplyCompletion(s Stats, now time.Time) Stats {
	next := s

	if s.LastCompletedAt == nil {
		next.CurrentStreak = 1
	} else if now.Sub(*s.LastCompletedAt) <= StreakWindow {
		next.CurrentStreak = s.CurrentStreak + 1
	} else {
		next.CurrentStreak = 1
	}

	next.LongestStreak = max(next.CurrentStreak, s.LongestStreak)
	next.TotalTasksCompleted = s.TotalTasksCompleted + 1
	next.Points = s.Points + PointsPerCompletion

	at := now
	next.LastCompletedAt = &at
	return next
}

// ApplyUncompletion undoes a single most recent completion as far as the
// snapshot allows. Points have no floor; the timestamp is cleared since no
// previous value is stored.
func ApplyUncompletion(s Stats) Stats {
	next := s
	next.TotalTasksCompleted = max(0, s.TotalTasksCompleted-1)
	next.Points = s.Points - PointsPerCompletion
	next.CurrentStreak = max(0, s.CurrentStreak-1)
	next.LastCompletedAt = nil
	return next
}

// CheckAchievements returns the ids of catalog entries reached by s that are
// not in alreadyEarned, in catalog order.
func CheckAchievements(s Stats, catalog []Achievement, alreadyEarned map[uint64]bool) []uint64 {
	var out []uint64
	seen := map[uint64]struct{}{}

	for _, a := range catalog {
		if alreadyEarned[a.ID] {
			continue
		}
		if _, ok := seen[a.ID]; ok {
			continue
		}
		if !Reached(s, a) {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a.ID)
	}
	return out
}

// Reached reports whether either threshold of a is met.
func Reached(s Stats, a Achievement) bool {
	if a.RequiredTasks != nil && s.TotalTasksCompleted >= *a.RequiredTasks {
		return true
	}
	if a.RequiredStreak != nil && s.CurrentStreak >= *a.RequiredStreak {
		return true
	}
	return false
}
