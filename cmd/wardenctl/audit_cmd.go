package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/config"
)

// auditCmd implements SPEC_FULL's structured audit query: the append-only
// JSONL logs under <dataDir>/audit are the source of truth (C9), and the
// SQLite index is a disposable, rebuild-on-query projection over them, so a
// stale or half-written index never shadows a real record.
func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the audit log",
	}
	cmd.AddCommand(auditQueryCmd())
	return cmd
}

func auditQueryCmd() *cobra.Command {
	var (
		runID    string
		toolName string
		typeStr  string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Search recorded tool calls, approvals, and errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir := config.DataDir()
			auditDir := filepath.Join(dataDir, "audit")

			indexPath := audit.DefaultIndexPath(dataDir)
			os.Remove(indexPath)

			idx, err := audit.OpenIndex(indexPath)
			if err != nil {
				return fmt.Errorf("open audit index: %w", err)
			}
			defer idx.Close()

			entries, err := readAllAuditEntries(auditDir)
			if err != nil {
				return fmt.Errorf("read audit logs: %w", err)
			}

			ctx := context.Background()
			if err := idx.Ingest(ctx, entries); err != nil {
				return fmt.Errorf("index audit logs: %w", err)
			}

			rows, err := idx.Search(ctx, audit.Query{
				RunID: runID,
				Tool:  toolName,
				Type:  audit.Type(typeStr),
				Limit: limit,
			})
			if err != nil {
				return fmt.Errorf("query audit index: %w", err)
			}

			for _, row := range rows {
				out, err := json.Marshal(row.Entry)
				if err != nil {
					return err
				}
				fmt.Println(string(out))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "filter by runId")
	cmd.Flags().StringVar(&toolName, "tool", "", "filter by tool name")
	cmd.Flags().StringVar(&typeStr, "type", "", "filter by entry type (tool_call, approval, patch, command, error)")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum rows to return")

	return cmd
}

func readAllAuditEntries(dir string) ([]audit.Entry, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, err
	}

	var out []audit.Entry
	for _, path := range matches {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var e audit.Entry
			if err := json.Unmarshal(line, &e); err != nil {
				continue
			}
			out = append(out, e)
		}
		f.Close()
	}
	return out, nil
}
