package main

import (
	"context"
	"errors"

	"github.com/Sternrassler/harvester/pkg/client"
	"github.com/Sternrassler/harvester/pkg/logging"
	"github.com/Sternrassler/harvester/pkg/meetup"
	"github.com/Sternrassler/harvester/pkg/ratelimit"
	"github.com/spf13/cobra"
)

// meetupOrigin prefixes the group url name to form the item origin.
const meetupOrigin = "https://meetup.com/"

func newMeetupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meetup GROUP",
		Short: "Fetch events of a Meetup group with comments and RSVPs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMeetup(cmd.Context(), args[0])
		},
	}

	flags := cmd.Flags()
	flags.String("token", "", "OAuth2 bearer token (or HARVEST_MEETUP_TOKEN)")
	flags.String("url", meetup.DefaultURL, "GraphQL endpoint")
	flags.Int("max-items", meetup.DefaultMaxItems, "items per page")
	flags.Bool("filter-classified", false, "remove personal data from events")
	flags.Bool("sleep-for-rate", false, "wait for the quota reset instead of failing")
	flags.Int("min-rate-to-sleep", meetup.DefaultMinRate, "remaining quota that triggers the wait")
	flags.Duration("sleep-time", meetup.DefaultSleepTime, "first backoff after a failed request")

	for key, name := range map[string]string{
		"meetup.token":             "token",
		"meetup.url":               "url",
		"meetup.max_items":         "max-items",
		"meetup.filter_classified": "filter-classified",
		"meetup.sleep_for_rate":    "sleep-for-rate",
		"meetup.min_rate":          "min-rate-to-sleep",
		"meetup.sleep_time":        "sleep-time",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}
	return cmd
}

func (a *app) runMeetup(ctx context.Context, group string) error {
	m := a.cfg.Meetup
	if m.Token == "" && !a.cfg.Archive.FromArchive {
		return errors.New("meetup token is required (--token or HARVEST_MEETUP_TOKEN)")
	}

	since, err := parseFromDate(a.fromDate)
	if err != nil {
		return err
	}

	arc, err := openArchive(ctx, a.cfg.Archive)
	if err != nil {
		return err
	}
	defer closeArchive(arc)

	govCfg := meetup.GovernorConfig(m.SleepForRate)
	govCfg.MinRate = m.MinRate
	govCfg.RequestsPerSecond = a.cfg.HTTP.RequestsPerSecond
	governor := ratelimit.NewGovernor(govCfg, logging.NewLogger(logging.ComponentGovernor))

	h := a.cfg.HTTP
	transportCfg := meetup.TransportConfig(h.UserAgent, governor)
	transportCfg.Timeout = h.Timeout
	transportCfg.Retry.MaxAttempts = h.MaxAttempts
	transportCfg.Retry.MaxBackoff = h.MaxBackoff
	transportCfg.Retry.InitialBackoff = m.SleepTime
	transportCfg.Archive = arc
	transportCfg.FromArchive = a.cfg.Archive.FromArchive

	transport, err := client.New(transportCfg)
	if err != nil {
		return err
	}

	mc, err := meetup.New(meetup.Config{
		URL:              m.URL,
		Group:            group,
		Token:            m.Token,
		MaxItems:         m.MaxItems,
		FilterClassified: m.FilterClassified,
	}, transport)
	if err != nil {
		return err
	}
	return a.run(ctx, meetupOrigin+group, mc.Fetch(ctx, since))
}
