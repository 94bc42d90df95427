package repository

// DebitBalance is the single-step balance rule shared by every store: the
// balance never goes below zero, and a pack that reaches zero becomes
// depleted unless refunded or expired already supersede that status.
func DebitBalance(remaining int, status PackStatus) (int, PackStatus) {
	next := remaining - 1
	if next < 0 {
		next = 0
	}
	if next == 0 && status != PackStatusRefunded && status != PackStatusExpired {
		return next, PackStatusDepleted
	}
	return next, status
}
