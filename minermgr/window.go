package minermgr

import "github.com/abesuite/abe-powminer/model"

const (
	// textWindowBits is the width of the nonce window of one worker on a
	// text job. Text nonces are 64 bits, so 2^24 workers fit.
	textWindowBits = 40
	// headerWindowBits is the width of the nonce window of one worker on a
	// header job. Header nonces are 32 bits, so only 2^6 windows fit.
	headerWindowBits = 26
	headerSlotBits   = 32 - headerWindowBits
	// MaxSlots bounds the number of workers with distinct text windows.
	MaxSlots = 1 << (64 - textWindowBits)
	// HeaderSlots bounds the number of workers with distinct header
	// windows.
	HeaderSlots = 1 << headerSlotBits
)

// Window returns the inclusive nonce window of slot on job. A header job
// has no window for slots beyond HeaderSlots.
func Window(slot uint64, job *model.JobTemplate) (uint64, uint64, error) {
	if job.IsHeaderJob() {
		if slot >= HeaderSlots {
			return 0, 0, ErrExceedMinerLimit
		}
		start := slot << headerWindowBits
		return start, start + (1 << headerWindowBits) - 1, nil
	}
	start := (slot % MaxSlots) << textWindowBits
	return start, start + (1 << textWindowBits) - 1, nil
}
