package minermgr

import "fmt"

// NotificationType represents the type of a notification message.
type NotificationType int

// NotificationCallback is used for a caller to provide a callback for
// notifications about various miner manager events.
type NotificationCallback func(*Notification)

// Constants for the type of a notification message.
const (
	// NTNewJobReady indicates a new job is ready to notify miners.
	NTNewJobReady NotificationType = iota

	// NTBlockFound indicates a share solved a block and the block was
	// handed to the chain client.
	NTBlockFound
)

// notificationTypeStrings is a map of notification types back to their constant
// names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	NTNewJobReady: "NTNewJobReady",
	NTBlockFound:  "NTBlockFound",
}

// String returns the NotificationType in human-readable form.
func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Notification Type (%d)", int(n))
}

// Notification defines notification that is sent to the caller via the callback
// function provided during the call to Subscribe and consists of a notification
// type as well as associated data.
//
// The data carried by each type is:
//   - NTNewJobReady: *model.JobTemplate
//   - NTBlockFound:  *model.ShareInfo
type Notification struct {
	Type NotificationType
	Data interface{}
}
