package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/adrianco/the-goodies/cmd/goodies/tui"
	"github.com/adrianco/the-goodies/internal/config"
	"github.com/adrianco/the-goodies/internal/logging"
	"github.com/adrianco/the-goodies/pkg/clientstore"
	"github.com/adrianco/the-goodies/pkg/model"
	"github.com/adrianco/the-goodies/pkg/syncengine"
	"github.com/adrianco/the-goodies/pkg/tracker"
)

var (
	cfgFile string
	version = "dev"
)

func main() {
	root := &cobra.Command{
		Use:     "goodies",
		Short:   "Client replica CLI for the-goodies graph sync",
		Version: version,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.AddCommand(syncCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(conflictsCmd())
	root.AddCommand(createCmd())
	root.AddCommand(updateCmd())
	root.AddCommand(deleteCmd())
	root.AddCommand(tui.Command(buildEngine))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildEngine opens the local replica and tracker under cfg.DataDir and
// wires a ClientEngine against cfg.ServerURL, shared by every subcommand
// (including the TUI, which polls it on its own schedule).
func buildEngine() (*syncengine.ClientEngine, func(), error) {
	cfg, err := config.LoadClientConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logging.Init(cfg.Logging, "goodies")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating data dir: %w", err)
	}

	st, err := clientstore.Open(filepath.Join(cfg.DataDir, "replica.ldb"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening replica store: %w", err)
	}
	trk, err := tracker.Open(filepath.Join(cfg.DataDir, "tracker.ldb"))
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("opening tracker: %w", err)
	}
	trk.SetMaxRetries(cfg.MaxRetries)

	e := syncengine.NewClientEngine(st, trk, cfg.ServerURL, cfg.DeviceID, cfg.UserID)
	e.AuthToken = cfg.AuthToken

	cleanup := func() {
		trk.Close()
		st.Close()
	}
	return e, cleanup, nil
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push pending local changes and pull server updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := buildEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			stats, err := e.Sync(ctx)
			if err != nil {
				color.Red("sync failed: %v", err)
				return err
			}
			color.Green("sync complete: %d received, %d applied, %d rejected, %d conflicts",
				stats.Received, stats.Applied, stats.Rejected, stats.Conflicts)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show local tracker rows and their sync state",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := buildEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			rows, err := e.Tracker.All(context.Background())
			if err != nil {
				return err
			}
			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(rows)
			}
			for _, r := range rows {
				line := fmt.Sprintf("%-36s %-8s %-8s retries=%d", r.EntityID, r.Operation, r.Status, r.RetryCount)
				switch r.Status {
				case tracker.StatusConflict:
					color.Red(line + " (" + r.ConflictReason + ")")
				case tracker.StatusPending:
					color.Yellow(line)
				default:
					color.Green(line)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

func conflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List local tracker rows stuck in conflict",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := buildEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			rows, err := e.Tracker.All(context.Background())
			if err != nil {
				return err
			}
			found := false
			for _, r := range rows {
				if r.Status != tracker.StatusConflict {
					continue
				}
				found = true
				color.Red("%s: %s", r.EntityID, r.ConflictReason)
			}
			if !found {
				fmt.Println("no unresolved conflicts")
			}
			return nil
		},
	}
}

// createCmd writes a brand new entity into the local replica and queues
// it for push, the local half of §4.5's "collect tracker rows with
// sync_status=pending" flow.
func createCmd() *cobra.Command {
	var contentJSON string
	cmd := &cobra.Command{
		Use:   "create <entity_type> <name>",
		Short: "Create a new entity in the local replica and queue it for sync",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := buildEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			entityType := model.EntityType(args[0])
			if !entityType.Valid() {
				return fmt.Errorf("unknown entity type %q", args[0])
			}
			content, err := parseContentFlag(contentJSON)
			if err != nil {
				return err
			}

			ctx := context.Background()
			ev := model.EntityVersion{
				ID:         uuid.NewString(),
				Version:    model.FormatVersion(time.Now().UTC(), e.UserID),
				EntityType: entityType,
				Name:       args[1],
				Content:    content,
				SourceType: model.SourceManual,
				UserID:     e.UserID,
			}
			if err := e.Store.PutVersion(ctx, ev, e.DeviceID); err != nil {
				return fmt.Errorf("writing entity: %w", err)
			}
			if err := e.Tracker.MarkPending(ctx, ev.ID, ev.EntityType, tracker.OpCreate); err != nil {
				return fmt.Errorf("queuing for sync: %w", err)
			}
			color.Green("created %s %q (id=%s), queued for next sync", entityType, args[1], ev.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&contentJSON, "content", "", "entity content as a JSON object")
	return cmd
}

// updateCmd writes a new version over an entity's current leaf.
func updateCmd() *cobra.Command {
	var contentJSON string
	cmd := &cobra.Command{
		Use:   "update <entity_id> <name>",
		Short: "Update an entity in the local replica and queue it for sync",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := buildEngine()
			if err != nil {
				return err
			}
			defer cleanup()
			ctx := context.Background()

			cur, err := e.Store.GetCurrent(ctx, args[0])
			if err != nil {
				return fmt.Errorf("looking up %s: %w", args[0], err)
			}

			content := cur.Content
			if contentJSON != "" {
				content, err = parseContentFlag(contentJSON)
				if err != nil {
					return err
				}
			}

			next := model.EntityVersion{
				ID:             cur.ID,
				Version:        model.FormatVersion(time.Now().UTC(), e.UserID),
				EntityType:     cur.EntityType,
				Name:           args[1],
				Content:        content,
				SourceType:     model.SourceManual,
				UserID:         e.UserID,
				ParentVersions: []string{cur.Version},
			}
			if err := e.Store.PutVersion(ctx, next, e.DeviceID); err != nil {
				return fmt.Errorf("writing update: %w", err)
			}
			if err := e.Tracker.MarkPending(ctx, next.ID, next.EntityType, tracker.OpUpdate); err != nil {
				return fmt.Errorf("queuing for sync: %w", err)
			}
			color.Green("updated %s, queued for next sync", next.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&contentJSON, "content", "", "replace entity content with this JSON object")
	return cmd
}

// deleteCmd writes a tombstone version over an entity's current leaf,
// per the hard-deletion-as-tombstone convention: delete never removes
// history, it adds a version whose content carries deleted=true.
func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entity_id>",
		Short: "Tombstone an entity in the local replica and queue the delete for sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := buildEngine()
			if err != nil {
				return err
			}
			defer cleanup()
			ctx := context.Background()

			cur, err := e.Store.GetCurrent(ctx, args[0])
			if err != nil {
				return fmt.Errorf("looking up %s: %w", args[0], err)
			}

			content := make(map[string]any, len(cur.Content)+1)
			for k, v := range cur.Content {
				content[k] = v
			}
			content["deleted"] = true

			next := model.EntityVersion{
				ID:             cur.ID,
				Version:        model.FormatVersion(time.Now().UTC(), e.UserID),
				EntityType:     cur.EntityType,
				Name:           cur.Name,
				Content:        content,
				SourceType:     model.SourceManual,
				UserID:         e.UserID,
				ParentVersions: []string{cur.Version},
			}
			if err := e.Store.PutVersion(ctx, next, e.DeviceID); err != nil {
				return fmt.Errorf("writing delete: %w", err)
			}
			if err := e.Tracker.MarkPending(ctx, next.ID, next.EntityType, tracker.OpDelete); err != nil {
				return fmt.Errorf("queuing for sync: %w", err)
			}
			color.Green("deleted %s, queued for next sync", next.ID)
			return nil
		},
	}
}

func parseContentFlag(raw string) (map[string]any, error) {
	content := map[string]any{}
	if raw == "" {
		return content, nil
	}
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return nil, fmt.Errorf("parsing --content: %w", err)
	}
	return content, nil
}
