package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/autopilot/internal/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage stored snapshots",
	Long: `List, create, restore, compare, and delete the snapshots autopilot
takes before destructive waves.`,
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotList,
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create <dir>",
	Short: "Snapshot a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotCreate,
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore a directory to a snapshot",
	Long: `Restore the directory a snapshot was taken of to exactly the snapshot's
contents. Files created after the snapshot are removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runSnapshotRestore,
}

var snapshotDiffCmd = &cobra.Command{
	Use:   "diff <id>",
	Short: "Show what changed since a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotDiff,
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete snapshots",
	Long:  `Delete snapshots. Their file contents are reclaimed by 'snapshot gc'.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSnapshotDelete,
}

var snapshotGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reclaim file contents no snapshot references",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotGC,
}

var snapshotLabel string

func init() {
	snapshotCreateCmd.Flags().StringVarP(&snapshotLabel, "label", "l", "", "Label stored with the snapshot")

	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)
	snapshotCmd.AddCommand(snapshotDiffCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)
	snapshotCmd.AddCommand(snapshotGCCmd)
	rootCmd.AddCommand(snapshotCmd)
}

// withStore opens the configured snapshot store for a single command.
func withStore(fn func(*snapshot.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := createLogger(cfg)
	defer func() { _ = logger.Close() }()

	store, err := openSnapshotStore(cfg, logger)
	if err != nil {
		return err
	}
	return fn(store)
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	return withStore(func(store *snapshot.Store) error {
		out := cmd.OutOrStdout()
		infos, err := store.List()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Fprintln(out, "No snapshots")
			return nil
		}

		for _, info := range infos {
			line := fmt.Sprintf("%s  %s  %s files  %s  %s",
				info.ID,
				mutedStyle.Render(humanize.Time(info.CreatedAt)),
				humanize.Comma(int64(info.Files)),
				humanize.IBytes(uint64(info.Bytes)),
				info.Root)
			if info.Label != "" {
				line += mutedStyle.Render(" (" + info.Label + ")")
			}
			fmt.Fprintln(out, line)
		}

		total, err := store.TotalSize()
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, field("Store", store.Dir()))
		fmt.Fprintln(out, field("Disk usage", humanize.IBytes(uint64(total))))
		return nil
	})
}

func runSnapshotCreate(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", args[0], err)
	}
	return withStore(func(store *snapshot.Store) error {
		snap, err := store.Create(cmd.Context(), root, snapshotLabel)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s files, %s)\n",
			snap.ID, humanize.Comma(int64(snap.Files)), humanize.IBytes(uint64(snap.Bytes)))
		return nil
	})
}

func runSnapshotRestore(cmd *cobra.Command, args []string) error {
	return withStore(func(store *snapshot.Store) error {
		start := time.Now()
		snap, err := store.Restore(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored %s to %s in %s\n",
			snap.Root, snap.ID, time.Since(start).Round(time.Millisecond))
		return nil
	})
}

func runSnapshotDiff(cmd *cobra.Command, args []string) error {
	return withStore(func(store *snapshot.Store) error {
		changes, err := store.Changes(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if changes.Empty() {
			fmt.Fprintln(out, "No changes since "+args[0])
			return nil
		}
		for _, p := range changes.Added {
			fmt.Fprintln(out, successStyle.Render("+ "+p))
		}
		for _, p := range changes.Modified {
			fmt.Fprintln(out, warningStyle.Render("~ "+p))
		}
		for _, p := range changes.Removed {
			fmt.Fprintln(out, errorStyle.Render("- "+p))
		}
		return nil
	})
}

func runSnapshotDelete(cmd *cobra.Command, args []string) error {
	return withStore(func(store *snapshot.Store) error {
		for _, id := range args {
			if err := store.Delete(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
		}
		return nil
	})
}

func runSnapshotGC(cmd *cobra.Command, args []string) error {
	return withStore(func(store *snapshot.Store) error {
		res, err := store.GC()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d blob(s), freed %s, kept %d\n",
			res.RemovedBlobs, humanize.IBytes(uint64(res.FreedBytes)), res.KeptBlobs)
		return nil
	})
}
