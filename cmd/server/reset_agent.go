package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apiMiddleware "github.com/traqcheck/bgv-agent/internal/api/middleware"
)

var (
	resetServerURL string
	resetSecret    string
)

var resetAgentCmd = &cobra.Command{
	Use:   "reset-agent",
	Short: "Ask a running server to recreate its agent",
	Long: `POST /agent/reset on a running server. The agent is rebuilt with the
current settings on its next request.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		body, err := resetAgent(ctx, http.DefaultClient, resetServerURL, resetSecret)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), body)
		return err
	},
}

func init() {
	resetAgentCmd.Flags().StringVar(&resetServerURL, "server", "http://localhost:8001", "base URL of the running server")
	resetAgentCmd.Flags().StringVar(&resetSecret, "secret", "", "service secret sent as "+apiMiddleware.ServiceSecretHeader)
}

func resetAgent(ctx context.Context, client *http.Client, baseURL, secret string) (string, error) {
	url := strings.TrimRight(baseURL, "/") + "/agent/reset"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	if secret != "" {
		req.Header.Set(apiMiddleware.ServiceSecretHeader, secret)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reset failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}
