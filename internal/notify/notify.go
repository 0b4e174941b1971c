// Copyright (c) 2026 CyberVPN. All rights reserved.

/*
Package notify delivers identity emails.

The dispatcher is fire-and-forget by contract: callers never learn whether
delivery succeeded, so a flaky mail relay cannot fail a registration or a
password reset. Failures are logged for the operators instead.
*/
package notify

import (
	"context"
	"log/slog"
)

// Dispatcher sends transactional identity mail.
type Dispatcher interface {
	DispatchOTPEmail(ctx context.Context, email, code string)
	DispatchMagicLinkEmail(ctx context.Context, email, token string)
}

// LogDispatcher writes every outbound message to the structured log instead
// of a mail relay. The development and test default; production deployments
// swap in a real relay implementation behind the same interface.
type LogDispatcher struct {
	log *slog.Logger
}

// NewLogDispatcher constructs the logging dispatcher.
func NewLogDispatcher(log *slog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

// DispatchOTPEmail implements [Dispatcher].
func (dispatcher *LogDispatcher) DispatchOTPEmail(ctx context.Context, email, code string) {
	dispatcher.log.InfoContext(ctx, "otp_email_dispatched",
		slog.String("email", email),
		slog.String("code", code))
}

// DispatchMagicLinkEmail implements [Dispatcher].
func (dispatcher *LogDispatcher) DispatchMagicLinkEmail(ctx context.Context, email, token string) {
	dispatcher.log.InfoContext(ctx, "magic_link_email_dispatched",
		slog.String("email", email),
		slog.String("token", token))
}
