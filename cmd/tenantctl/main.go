package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	apiclient "github.com/ratekl/api/pkg/api/client"
)

const defaultAPIBase = "http://localhost:3333"

var buildVersion = "dev"

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	Tenant      string `json:"tenant,omitempty"`
	AccessToken string `json:"access_token"`
}

type cliState struct {
	configPath string
	apiBase    string
	timeout    time.Duration
	cfg        cliConfig
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	state := &cliState{}
	root := &cobra.Command{
		Use:           "tenantctl",
		Short:         "Administer the tenant directory and activity state",
		Version:       buildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(state.configPath)
			if err != nil {
				return err
			}
			if strings.TrimSpace(state.apiBase) != "" {
				cfg.APIBaseURL = state.apiBase
			}
			state.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&state.configPath, "config", defaultConfigPath(), "Path to config file")
	root.PersistentFlags().StringVar(&state.apiBase, "api", "", "API base URL (default "+defaultAPIBase+")")
	root.PersistentFlags().DurationVar(&state.timeout, "timeout", 15*time.Second, "Request timeout")

	root.AddCommand(newLoginCmd(state), newDomainsCmd(state), newActivityCmd(state))
	return root
}

func newLoginCmd(state *cliState) *cobra.Command {
	var (
		tenant   string
		userName string
		password string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in as a member of a tenant and store the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(tenant) == "" {
				return errors.New("--host is required")
			}
			if strings.TrimSpace(userName) == "" {
				return errors.New("--user is required")
			}
			secret := password
			if secret == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Password: ")
				raw, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Fprintln(cmd.OutOrStdout())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				secret = string(raw)
			}
			client, err := apiclient.New(state.cfg.APIBaseURL, apiclient.WithTenantHost(tenant))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), state.timeout)
			defer cancel()
			token, err := client.Login(ctx, userName, secret)
			if err != nil {
				return err
			}
			state.cfg.Tenant = tenant
			state.cfg.AccessToken = token
			if err := saveConfig(state.configPath, state.cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "login successful")
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "host", "", "Tenant hostname, e.g. acme.com")
	cmd.Flags().StringVar(&userName, "user", "", "Member user name")
	cmd.Flags().StringVar(&password, "password", "", "Password (supply to avoid prompt)")
	return cmd
}

// authed returns a client and the stored token, failing when no login exists.
func (s *cliState) authed() (*apiclient.Client, string, error) {
	token := strings.TrimSpace(s.cfg.AccessToken)
	if token == "" {
		return nil, "", errors.New("please login first using 'tenantctl login'")
	}
	client, err := apiclient.New(s.cfg.APIBaseURL)
	if err != nil {
		return nil, "", err
	}
	return client, token, nil
}

func (s *cliState) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), s.timeout)
}

func loadConfig(path string) (cliConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaultAPIBase}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBase
	}
	return cfg, nil
}

func saveConfig(path string, cfg cliConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func defaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ".tenantctl.json"
	}
	return filepath.Join(base, "tenantctl", "config.json")
}
