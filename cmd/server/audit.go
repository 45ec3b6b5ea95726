package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/traqcheck/bgv-agent/internal/audit"
	"github.com/traqcheck/bgv-agent/internal/platform/memory"
)

var (
	auditLimit  int
	auditAction string
	auditOutput string
)

var auditCmd = &cobra.Command{
	Use:   "audit <bgv-request-id>",
	Short: "Print the agent activity log of a BGV request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid bgv request id %q", args[0])
		}
		if auditOutput != "table" && auditOutput != "json" {
			return fmt.Errorf("unsupported output format: %s", auditOutput)
		}

		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := setupLogger(cfg)
		if err != nil {
			return err
		}

		st, err := openStores(cmd.Context(), cfg.Database, logger)
		if err != nil {
			return err
		}
		defer st.Close() // nolint:errcheck // best-effort cleanup
		if _, ok := st.audit.(*memory.AuditStore); ok {
			logger.Warn("audit log is empty without a database")
		}

		entries, err := st.audit.Query(cmd.Context(), audit.Filter{
			BGVRequestID: id,
			Action:       audit.Action(auditAction),
			Limit:        auditLimit,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if auditOutput == "json" {
			payload, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, string(payload))
			return err
		}
		_, err = fmt.Fprintln(out, renderAuditTable(entries))
		return err
	},
}

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum entries to print")
	auditCmd.Flags().StringVar(&auditAction, "action", "", "only print entries with this action")
	auditCmd.Flags().StringVarP(&auditOutput, "output", "o", "table", "output format: table or json")
	auditCmd.Flags().String("database", "", "PostgreSQL URL")
}

// renderAuditTable renders entries newest first as an ASCII table.
func renderAuditTable(entries []*audit.Entry) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Created", "Action", "Message", "Metadata"})

	for _, e := range entries {
		t.AppendRow(table.Row{
			e.ID,
			e.CreatedAt.UTC().Format(time.RFC3339),
			string(e.Action),
			e.Message,
			formatMetadata(e.Metadata),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d entries", len(entries))})
	return t.Render()
}

// formatMetadata prints one key=value pair per line in key order.
func formatMetadata(metadata map[string]any) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s=%v", k, metadata[k]))
	}
	return strings.Join(lines, "\n")
}
