package main

import (
	"context"

	"github.com/Sternrassler/harvester/pkg/client"
	"github.com/Sternrassler/harvester/pkg/gerrit"
	"github.com/spf13/cobra"
)

func newGerritCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gerrit HOSTNAME",
		Short: "Fetch reviews from a Gerrit server over SSH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGerrit(cmd.Context(), args[0])
		},
	}

	flags := cmd.Flags()
	flags.String("user", "", "SSH user")
	flags.String("port", gerrit.DefaultPort, "SSH port")
	flags.Int("max-reviews", gerrit.DefaultMaxReviews, "reviews per query")
	flags.String("project", "", "only fetch reviews of this project")
	flags.StringSlice("blacklist-ids", nil, "review numbers to skip")
	flags.Bool("disable-host-key-check", false, "skip SSH host key verification")
	flags.String("ssh-id-filepath", "", "SSH private key file")

	for key, name := range map[string]string{
		"gerrit.user":                   "user",
		"gerrit.port":                   "port",
		"gerrit.max_reviews":            "max-reviews",
		"gerrit.project":                "project",
		"gerrit.blacklist_ids":          "blacklist-ids",
		"gerrit.disable_host_key_check": "disable-host-key-check",
		"gerrit.id_filepath":            "ssh-id-filepath",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}
	return cmd
}

func (a *app) runGerrit(ctx context.Context, hostname string) error {
	since, err := parseFromDate(a.fromDate)
	if err != nil {
		return err
	}

	arc, err := openArchive(ctx, a.cfg.Archive)
	if err != nil {
		return err
	}
	defer closeArchive(arc)

	g := a.cfg.Gerrit
	transport, err := client.NewCommandClient(client.CommandConfig{
		MaxAttempts: g.MaxAttempts,
		RetryWait:   g.RetryWait,
		Archive:     arc,
		FromArchive: a.cfg.Archive.FromArchive,
	}, a.runner)
	if err != nil {
		return err
	}

	cfg := gerrit.DefaultConfig(hostname)
	cfg.User = g.User
	cfg.Port = g.Port
	cfg.MaxReviews = g.MaxReviews
	cfg.Project = g.Project
	cfg.BlacklistIDs = g.BlacklistIDs
	cfg.DisableHostKeyCheck = g.DisableHostKeyCheck
	cfg.IDFilePath = g.IDFilePath

	gc, err := gerrit.New(cfg, transport)
	if err != nil {
		return err
	}
	return a.run(ctx, hostname, gc.Fetch(ctx, since))
}
