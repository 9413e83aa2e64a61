// Package notify decides when a detection warrants a push notification and
// delivers it at most once per sighting event.
package notify

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/featherwatch/featherwatch/internal/errors"
)

// Transport sends a rendered notification to its destinations.
type Transport interface {
	Send(ctx context.Context, title, message string) error
}

// ShoutrrrTransport delivers notifications over shoutrrr service URLs
// (telegram, discord, pushover, generic webhooks, ...).
type ShoutrrrTransport struct {
	urls    []string
	sender  *router.ServiceRouter
	timeout time.Duration
}

// NewShoutrrrTransport builds a transport from shoutrrr service URLs.
func NewShoutrrrTransport(urls []string, timeout time.Duration) (*ShoutrrrTransport, error) {
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, errors.New(err).
			Component("notify").
			Category(errors.CategoryConfiguration).
			Context("operation", "create_sender").
			Context("url_count", len(urls)).
			Build()
	}
	sender.Timeout = timeout
	// The router logs through the stdlib logger, silence it.
	sender.SetLogger(log.New(io.Discard, "", 0))

	return &ShoutrrrTransport{
		urls:    urls,
		sender:  sender,
		timeout: timeout,
	}, nil
}

// Send delivers the message to every configured service. A partial failure
// returns an error naming how many destinations failed.
func (t *ShoutrrrTransport) Send(ctx context.Context, title, message string) error {
	params := stypes.Params{}
	params.SetTitle(title)

	sendErrs := t.sender.Send(message, &params)

	var failures []string
	for _, err := range sendErrs {
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return errors.Newf("notification delivery failed: %s", strings.Join(failures, "; ")).
		Component("notify").
		Category(errors.CategoryNotification).
		Context("failed", len(failures)).
		Context("total", len(sendErrs)).
		Build()
}
