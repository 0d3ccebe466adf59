// Package push delivers mobile push notifications through Firebase Cloud
// Messaging.
package push

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"bloodlink-backend/internal/logger"
)

// ErrNotConfigured is returned by the noop sender.
var ErrNotConfigured = errors.New("push delivery not configured")

// fcmMulticastLimit is the token cap of one FCM multicast call.
const fcmMulticastLimit = 500

type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Result summarizes a multicast. InvalidTokens lists tokens FCM reported as
// unregistered so callers can prune them.
type Result struct {
	Success       int
	Failure       int
	InvalidTokens []string
}

type Sender interface {
	Send(ctx context.Context, tokens []string, msg Message) (Result, error)
	Enabled() bool
}

type multicastClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type fcmSender struct {
	client multicastClient
}

// NewFCMSender builds a sender from a service-account credentials file.
func NewFCMSender(ctx context.Context, projectID, credentialsFile string) (Sender, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging: %w", err)
	}
	return &fcmSender{client: client}, nil
}

func (s *fcmSender) Enabled() bool { return true }

func (s *fcmSender) Send(ctx context.Context, tokens []string, msg Message) (Result, error) {
	var res Result
	if len(tokens) == 0 {
		return res, nil
	}

	logger.ExternalServiceCall("FCM", "SendEachForMulticast", "tokens", len(tokens))
	for start := 0; start < len(tokens); start += fcmMulticastLimit {
		end := min(start+fcmMulticastLimit, len(tokens))
		batch := tokens[start:end]

		resp, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens: batch,
			Notification: &messaging.Notification{
				Title: msg.Title,
				Body:  msg.Body,
			},
			Data: msg.Data,
		})
		if err != nil {
			logger.ExternalServiceResult("FCM", "SendEachForMulticast", err)
			return res, err
		}

		res.Success += resp.SuccessCount
		res.Failure += resp.FailureCount
		for i, r := range resp.Responses {
			if r.Success || r.Error == nil {
				continue
			}
			if messaging.IsUnregistered(r.Error) || messaging.IsInvalidArgument(r.Error) {
				res.InvalidTokens = append(res.InvalidTokens, batch[i])
			}
		}
	}
	logger.ExternalServiceResult("FCM", "SendEachForMulticast", nil, "success", res.Success, "failure", res.Failure)

	if res.Success == 0 && res.Failure > 0 {
		return res, fmt.Errorf("all %d push deliveries failed", res.Failure)
	}
	return res, nil
}

type noopSender struct{}

// NewNoopSender is used when firebase is disabled.
func NewNoopSender() Sender {
	return noopSender{}
}

func (noopSender) Enabled() bool { return false }

func (noopSender) Send(ctx context.Context, tokens []string, msg Message) (Result, error) {
	return Result{}, ErrNotConfigured
}
