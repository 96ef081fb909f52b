package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultAPIURL   = "http://127.0.0.1:8090"
	dumpPath        = "/api/v1/effects/dump"
	tokenEnvVar     = "GRAYLOGIC_FX_TOKEN"
	dumpHTTPTimeout = 10 * time.Second
)

type dumpOptions struct {
	URL   string
	Token string
}

// newDumpCommand fetches the registry diagnostic report from a running
// service.
func newDumpCommand() *cobra.Command {
	opts := &dumpOptions{}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the device effect diagnostic dump",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token := opts.Token
			if token == "" {
				token = os.Getenv(tokenEnvVar)
			}
			return fetchDump(cmd.Context(), opts.URL, token, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", defaultAPIURL, "base URL of the API")
	cmd.Flags().StringVar(&opts.Token, "token", "", "admin token (env "+tokenEnvVar+")")

	return cmd
}

// fetchDump writes the dump to out. A degraded report is still printed, with
// a warning on errOut.
func fetchDump(ctx context.Context, baseURL, token string, out, errOut io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, dumpHTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(baseURL, "/")+dumpPath, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting dump: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading dump: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dump request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if resp.Header.Get("X-Dump-Degraded") == "true" {
		fmt.Fprintln(errOut, "warning: registry lock busy, report is partial")
	}
	_, err = out.Write(body)
	return err
}
