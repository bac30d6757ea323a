// Package inventory defines the device inventory model shared by the store,
// the reconciler, the notification channel and the HTTP API.
//
// The main types are:
//
//   - [Device]: a network device with a reachability [Status]
//   - [StatusChangeEvent]: emitted when a device's persisted status changes
//   - [Router], [Printer], [Box]: category rows joined with their device
//   - [User]: an account allowed to use the API
package inventory
