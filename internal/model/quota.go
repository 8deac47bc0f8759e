package model

// Quota is a user's consumption of a numeric daily limit.
// Count only applies while LastDay equals the current business day;
// on any other day the user has the full limit available.
type Quota struct {
	UserID  string
	Count   int
	LastDay string
}

// Remaining returns how many units are left today.
func (q Quota) Remaining(limit int, today string) int {
	if q.LastDay != today {
		return limit
	}
	if left := limit - q.Count; left > 0 {
		return left
	}
	return 0
}
