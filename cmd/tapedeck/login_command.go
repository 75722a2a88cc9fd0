package main

import (
	"bufio"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"tapedeck/internal/services/audible"
)

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var country string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Register this device with Audible",
		Long: "Prints the Amazon sign-in URL and the browser headers it expects. Sign in,\n" +
			"then paste the URL of the page you land on (it contains openid.oa2.authorization_code).",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			if cfg == nil {
				return errors.New("configuration not loaded")
			}
			countryCode := strings.TrimSpace(country)
			if countryCode == "" {
				countryCode = cfg.Source.CountryCode
			}

			flow := audible.NewOAuthFlow(
				audible.WithOAuthHTTPClient(ctx.metadataHTTPClient()),
				audible.WithOAuthLogger(ctx.loggerValue()),
			)
			source, err := flow.Start(countryCode)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Open the following URL in a browser and sign in:")
			fmt.Fprintf(out, "\n    %s\n\n", source.URL)
			fmt.Fprintln(out, "Send these headers with the request (a header-editing extension works):")
			keys := make([]string, 0, len(source.Headers))
			for key := range source.Headers {
				keys = append(keys, key)
			}
			slices.Sort(keys)
			for _, key := range keys {
				fmt.Fprintf(out, "    %s: %s\n", key, source.Headers.Get(key))
			}
			fmt.Fprintln(out, "\nPaste the URL of the page you land on after signing in:")

			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			handled := false
			for !handled && scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				handled, err = flow.HandleNavigation(line)
				if err != nil {
					return err
				}
				if !handled {
					fmt.Fprintln(out, "That is not the sign-in landing page; paste the final URL from the address bar.")
				}
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read landing url: %w", err)
			}
			if !handled {
				return fmt.Errorf("%w: login aborted before the landing page was reached", audible.ErrOAuth)
			}

			reg, err := flow.Register(cmd.Context())
			if err != nil {
				return err
			}
			if err := ctx.saveRegistration(cmd.Context(), reg); err != nil {
				return fmt.Errorf("save registration: %w", err)
			}

			who := reg.CustomerName()
			if who == "" {
				who = "your account"
			}
			fmt.Fprintf(out, "Registered %q for %s on audible.%s\n", reg.DeviceName(), who, reg.TLD)
			return nil
		},
	}

	cmd.Flags().StringVar(&country, "country", "", "Marketplace country code (defaults to source.country_code)")
	return cmd
}

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := ctx.loadRegistration(cmd.Context())
			if err != nil {
				return err
			}
			client, err := audible.NewClient(reg,
				audible.WithHTTPClient(ctx.metadataHTTPClient()),
				audible.WithLogger(ctx.loggerValue()),
				audible.WithTokenRefreshed(ctx.saveRegistration),
			)
			if err != nil {
				return err
			}
			updated, err := client.RefreshAccessToken(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Access token valid until %s\n", updated.ExpiresAt.Local().Format("2006-01-02 15:04 MST"))
			return nil
		},
	}
}
