package derive

import "time"

const dayMillis = int64(86_400_000)
const daySeconds = 86_400

// EpochDays is floor(now_ms / 86_400_000), the unit-days-since-epoch input
// to window and salt derivation.
func EpochDays(now time.Time) int64 {
	return now.UnixMilli() / dayMillis
}

// WindowID is currently an identity function over epochDays (spec §9 Open
// Question 2): the layered design anticipates sub-day windows, so windowId
// stays a distinct, named input to eta even though it equals epochDays
// today.
func WindowID(epochDays int64) int64 {
	return epochDays
}

// SecondsUntilWindowEnd returns the positive number of seconds (bounded by
// 86400) remaining until the current UTC day rolls over, used to size
// counter/IK TTLs.
func SecondsUntilWindowEnd(now time.Time) int {
	now = now.UTC()
	secOfDay := now.Hour()*3600 + now.Minute()*60 + now.Second()
	remaining := daySeconds - secOfDay
	if remaining <= 0 {
		remaining = daySeconds
	}
	return remaining
}

// InGraceWindow reports whether now falls within graceSeconds of UTC
// midnight on either side, using the half-open intervals from spec §9
// Open Question 3: [00:00:00, graceSeconds) and
// (86400-graceSeconds, 86400), strict on both outer edges so a sample
// landing exactly on midnight is counted exactly once.
func InGraceWindow(now time.Time, graceSeconds int) bool {
	now = now.UTC()
	secOfDay := now.Hour()*3600 + now.Minute()*60 + now.Second()
	if secOfDay < graceSeconds {
		return true
	}
	if secOfDay > daySeconds-graceSeconds {
		return true
	}
	return false
}
