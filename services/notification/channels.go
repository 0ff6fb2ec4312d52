package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"campushub/config"
	"campushub/models"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// EmailProvider delivers a rendered notification over email.
type EmailProvider interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSProvider delivers a rendered notification over SMS.
type SMSProvider interface {
	SendSMS(ctx context.Context, phone, message string) error
}

// PushProvider delivers a rendered notification as a mobile push.
type PushProvider interface {
	SendPush(ctx context.Context, token, title, body string, data map[string]string) error
}

// MultiChannelSender routes a notification to its non-realtime channels. A
// failure in one channel is logged and returned for observability but never
// prevents the other channels from being attempted, and never fails the
// overall dispatch.
type MultiChannelSender struct {
	Email  EmailProvider
	SMS    SMSProvider
	Push   PushProvider
	Logger *zap.Logger
}

// Send attempts every requested non-realtime channel for one recipient.
func (s *MultiChannelSender) Send(ctx context.Context, n *models.Notification, recipient *models.User) []error {
	var errs []error
	record := func(channel string, err error) {
		cerr := NewChannelError(channel, err.Error())
		s.Logger.Warn("channel delivery failed",
			zap.String("channel", channel),
			zap.String("notificationId", n.ID),
			zap.String("userId", recipient.ID),
			zap.Error(err),
		)
		errs = append(errs, cerr)
	}

	if n.HasMethod(models.DeliveryEmail) && s.Email != nil {
		if recipient.Email == "" {
			record("email", fmt.Errorf("user %s has no email address", recipient.ID))
		} else if err := s.Email.SendEmail(ctx, recipient.Email, n.Title, n.Message); err != nil {
			record("email", err)
		}
	}

	if n.HasMethod(models.DeliverySMS) && s.SMS != nil {
		if recipient.Phone == "" {
			record("sms", fmt.Errorf("user %s has no phone number", recipient.ID))
		} else if err := s.SMS.SendSMS(ctx, recipient.Phone, n.Title+" - "+n.Message); err != nil {
			record("sms", err)
		}
	}

	if n.HasMethod(models.DeliveryPush) && s.Push != nil {
		if recipient.FCMToken == "" {
			record("push", fmt.Errorf("user %s has no FCM token", recipient.ID))
		} else if err := s.Push.SendPush(ctx, recipient.FCMToken, n.Title, n.Message, n.Data); err != nil {
			record("push", err)
		}
	}

	return errs
}

// SMTPEmailProvider sends email through the configured SMTP relay.
type SMTPEmailProvider struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPEmailProvider() *SMTPEmailProvider {
	cfg := config.AppConfig
	return &SMTPEmailProvider{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		from:   cfg.SMTPFrom,
	}
}

func (p *SMTPEmailProvider) SendEmail(ctx context.Context, to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", p.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := p.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// HTTPSMSGateway posts messages to an external SMS gateway.
type HTTPSMSGateway struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPSMSGateway() *HTTPSMSGateway {
	return &HTTPSMSGateway{
		url:    config.AppConfig.SMSGatewayURL,
		apiKey: config.AppConfig.SMSGatewayKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *HTTPSMSGateway) SendSMS(ctx context.Context, phone, message string) error {
	if g.url == "" {
		return fmt.Errorf("sms gateway not configured")
	}
	payload, err := json.Marshal(map[string]string{"to": phone, "message": message})
	if err != nil {
		return fmt.Errorf("sms payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned %s", resp.Status)
	}
	return nil
}

// FCMPushProvider sends pushes through the Firebase messaging client.
type FCMPushProvider struct {
	Client *messaging.Client
}

func (p *FCMPushProvider) SendPush(ctx context.Context, token, title, body string, data map[string]string) error {
	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}
	if _, err := p.Client.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send FCM message: %w", err)
	}
	return nil
}
