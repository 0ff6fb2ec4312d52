package notification

import "fmt"

// AudienceError signals that an audience descriptor could not be expanded.
// The dispatch for that notification is skipped for this attempt; scheduled
// notifications are retried by the next due-scan pass.
type AudienceError struct {
	Code    string
	Message string
}

func (e *AudienceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAudienceError(msg string) error {
	return &AudienceError{
		Code:    "audienceError",
		Message: msg,
	}
}

// TemplateError signals an unregistered template or a missing required
// variable. Fatal to that single notification, never to the caller's loop.
type TemplateError struct {
	Code    string
	Message string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewTemplateError(msg string) error {
	return &TemplateError{
		Code:    "templateError",
		Message: msg,
	}
}

// ChannelError signals a delivery-channel provider failure (email, SMS,
// push). Isolated per channel: it never affects realtime delivery or the
// other channels.
type ChannelError struct {
	Code    string
	Channel string
	Message string
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s(%s): %s", e.Code, e.Channel, e.Message)
}

func NewChannelError(channel, msg string) error {
	return &ChannelError{
		Code:    "channelError",
		Channel: channel,
		Message: msg,
	}
}
