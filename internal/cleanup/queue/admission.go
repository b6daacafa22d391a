package queue

// DefaultHeadroom is the number of queue slots kept free below the ceiling.
const DefaultHeadroom = 1

// SlotsAvailable returns how many paused scans may be resumed this cycle:
// max(0, ceiling - active - 1).
func SlotsAvailable(active, ceiling int) int {
	return SlotsAvailableWithHeadroom(active, ceiling, DefaultHeadroom)
}

// SlotsAvailableWithHeadroom is SlotsAvailable with a configurable number of
// reserved slots. The result is never negative and never exceeds ceiling.
func SlotsAvailableWithHeadroom(active, ceiling, headroom int) int {
	if ceiling <= 0 {
		return 0
	}
	if active < 0 {
		active = 0
	}
	if headroom < 0 {
		headroom = 0
	}
	slots := ceiling - active - headroom
	if slots < 0 {
		return 0
	}
	return slots
}
