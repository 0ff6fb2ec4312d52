// File: utils/constants.go
package utils

import "time"

// OfflineQueuePrefix is the prefix for per-user offline delivery queue keys.
const OfflineQueuePrefix = "offline:"

// OfflineQueueTTL bounds how long an untouched offline queue is retained.
const OfflineQueueTTL = 30 * 24 * time.Hour

// OfflineQueueMaxLen caps the entries kept per user; oldest are evicted first.
const OfflineQueueMaxLen = 500

// ReminderMarkerPrefix is the prefix for per-(assignment, window) reminder markers.
const ReminderMarkerPrefix = "reminder:"

// NotificationRetention is the default retention for notifications and
// recipient delivery records without an explicit expiry.
const NotificationRetention = 30 * 24 * time.Hour
