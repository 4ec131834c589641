package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ratekl/api/internal/domain"
)

func newDomainsCmd(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domains",
		Short: "Manage the tenant directory",
	}
	cmd.AddCommand(
		newDomainsListCmd(state),
		newDomainsGetCmd(state),
		newDomainsPutCmd(state),
		newDomainsDeleteCmd(state),
		newDomainsInvalidateCmd(state),
	)
	return cmd
}

func newDomainsListCmd(state *cliState) *cobra.Command {
	var active string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List directory entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *bool
			if active != "" {
				v, err := strconv.ParseBool(active)
				if err != nil {
					return fmt.Errorf("--active: %w", err)
				}
				filter = &v
			}
			client, token, err := state.authed()
			if err != nil {
				return err
			}
			ctx, cancel := state.context(cmd)
			defer cancel()
			domains, err := client.ListDomains(ctx, token, filter)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "HOSTNAME\tDATABASE\tACTIVE\tREDIRECT")
			for _, d := range domains {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", d.Hostname, d.Database, d.Active, d.Redirect)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&active, "active", "", "Only entries in this active state (true|false)")
	return cmd
}

func newDomainsGetCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "get <hostname>",
		Short: "Show one directory entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, token, err := state.authed()
			if err != nil {
				return err
			}
			ctx, cancel := state.context(cmd)
			defer cancel()
			d, err := client.GetDomain(ctx, token, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "hostname: %s\ndatabase: %s\nactive: %t\nredirect: %s\n", d.Hostname, d.Database, d.Active, d.Redirect)
			return nil
		},
	}
}

func newDomainsPutCmd(state *cliState) *cobra.Command {
	var (
		database string
		redirect string
		active   bool
		create   bool
	)
	cmd := &cobra.Command{
		Use:   "put <hostname>",
		Short: "Create or replace a directory entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, token, err := state.authed()
			if err != nil {
				return err
			}
			ctx, cancel := state.context(cmd)
			defer cancel()
			entry := domain.Domain{Hostname: args[0], Database: database, Redirect: redirect, Active: active}
			if create {
				if _, err := client.CreateDomain(ctx, token, entry); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "domain created: %s\n", entry.Hostname)
				return nil
			}
			if err := client.ReplaceDomain(ctx, token, entry); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "domain replaced: %s\n", entry.Hostname)
			return nil
		},
	}
	cmd.Flags().StringVar(&database, "database", "", "Database holding the tenant's content")
	cmd.Flags().StringVar(&redirect, "redirect", "", "Optional redirect target")
	cmd.Flags().BoolVar(&active, "active", true, "Whether the tenant is active")
	cmd.Flags().BoolVar(&create, "create", false, "Create a new entry instead of replacing one")
	_ = cmd.MarkFlagRequired("database")
	return cmd
}

func newDomainsDeleteCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <hostname>",
		Short: "Remove a directory entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, token, err := state.authed()
			if err != nil {
				return err
			}
			ctx, cancel := state.context(cmd)
			defer cancel()
			if err := client.DeleteDomain(ctx, token, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "domain deleted: %s\n", args[0])
			return nil
		},
	}
}

func newDomainsInvalidateCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <hostname>",
		Short: "Drop the server's cached collection handles of a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, token, err := state.authed()
			if err != nil {
				return err
			}
			ctx, cancel := state.context(cmd)
			defer cancel()
			n, err := client.InvalidateDomain(ctx, token, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "handles dropped: %d\n", n)
			return nil
		},
	}
}
