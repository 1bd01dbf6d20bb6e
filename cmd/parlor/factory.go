package main

import (
	"fmt"

	"github.com/zulandar/parlor/internal/transport"
	"github.com/zulandar/parlor/internal/transport/discord"
	"github.com/zulandar/parlor/internal/transport/slack"
	"github.com/zulandar/parlor/internal/transport/telegram"
)

// newAdapter builds the messaging transport for a tenant. Slack credentials
// carry both tokens as "<bot token>,<app token>".
func newAdapter(platform, credential string) (transport.Adapter, error) {
	var (
		a   transport.Adapter
		err error
	)
	switch platform {
	case "telegram":
		a, err = telegram.New(telegram.AdapterOpts{Token: credential})
	case "discord":
		a, err = discord.New(discord.AdapterOpts{BotToken: credential})
	case "slack":
		var opts slack.AdapterOpts
		if opts, err = slack.ParseCredential(credential); err == nil {
			a, err = slack.New(opts)
		}
	default:
		err = fmt.Errorf("unsupported platform %q", platform)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

var _ transport.Factory = newAdapter
