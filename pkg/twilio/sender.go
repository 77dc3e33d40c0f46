// Package twilio sends WhatsApp messages through the Twilio Messages API.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	twilio "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/angelmondragon/groceryhub-backend/pkg/config"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/phone"
)

// Message is one outbound WhatsApp message. To is E.164.
type Message struct {
	To       string
	Body     string
	MediaURL string
}

// Sender delivers a message and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Client is the Twilio-backed Sender.
type Client struct {
	api  messageCreator
	from string
	logg *logger.Logger
}

func NewClient(cfg config.TwilioConfig, logg *logger.Logger) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("twilio account sid, auth token and from number are required")
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{
		api:  rest.Api,
		from: phone.WhatsAppAddress(strings.TrimSpace(cfg.FromNumber)),
		logg: logg,
	}, nil
}

// Send blocks until Twilio answers or ctx is done. The SDK call itself takes
// no context, so an abandoned call keeps running in the background.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if strings.TrimSpace(msg.To) == "" {
		return "", errors.New("recipient is required")
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(phone.WhatsAppAddress(msg.To))
	params.SetFrom(c.from)
	params.SetBody(msg.Body)
	if msg.MediaURL != "" {
		params.SetMediaUrl([]string{msg.MediaURL})
	}

	type result struct {
		sid string
		err error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := c.api.CreateMessage(params)
		if err != nil {
			done <- result{err: describe(err)}
			return
		}
		if resp == nil || resp.Sid == nil {
			done <- result{err: errors.New("twilio returned no message sid")}
			return
		}
		done <- result{sid: *resp.Sid}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("twilio send: %w", ctx.Err())
	case r := <-done:
		return r.sid, r.err
	}
}

func describe(err error) error {
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) {
		return fmt.Errorf("twilio %d (status %d): %s", restErr.Code, restErr.Status, restErr.Message)
	}
	return fmt.Errorf("twilio send: %w", err)
}

// LogSender is used when Twilio credentials are absent. It logs each message
// and returns a synthetic id so local flows complete.
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (s *LogSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"to":        msg.To,
			"has_media": msg.MediaURL != "",
			"body_len":  len(msg.Body),
		})
		s.logg.Info(ctx, "whatsapp message logged (twilio disabled)")
	}
	return "log-" + uuid.NewString(), nil
}

// New picks the Twilio client when configured and the log sender otherwise.
func New(cfg config.TwilioConfig, logg *logger.Logger) (Sender, error) {
	if !cfg.Enabled() {
		return NewLogSender(logg), nil
	}
	return NewClient(cfg, logg)
}
