package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

func checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage database checkpoints",
		Long: `Create, list, restore, and delete database checkpoints.

Imports make an automatic checkpoint before they store transactions and
before a rollback, so a bad import can always be undone by restoring.`,
		Example: `  # Create a checkpoint before a large import
  spice-ledger checkpoint create --tag "pre-2024-import"

  # List all checkpoints
  spice-ledger checkpoint list

  # Restore from a checkpoint
  spice-ledger checkpoint restore pre-2024-import`,
	}

	cmd.AddCommand(createCheckpointCmd())
	cmd.AddCommand(listCheckpointsCmd())
	cmd.AddCommand(restoreCheckpointCmd())
	cmd.AddCommand(deleteCheckpointCmd())

	return cmd
}

// withCheckpoints opens storage and hands its checkpoint manager to fn.
func withCheckpoints(cmd *cobra.Command, fn func(*storage.CheckpointManager) error) error {
	store, err := initStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	manager, err := store.NewCheckpointManager()
	if err != nil {
		return fmt.Errorf("failed to create checkpoint manager: %w", err)
	}
	return fn(manager)
}

// findCheckpoint looks up a checkpoint by id.
func findCheckpoint(cmd *cobra.Command, manager *storage.CheckpointManager, id string) (*storage.CheckpointInfo, error) {
	checkpoints, err := manager.List(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	for i := range checkpoints {
		if checkpoints[i].ID == id {
			return &checkpoints[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", storage.ErrCheckpointNotFound, id)
}

func createCheckpointCmd() *cobra.Command {
	var tag string
	var description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new checkpoint",
		Long:  `Create a snapshot of the current database state.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCheckpoints(cmd, func(manager *storage.CheckpointManager) error {
				// Create checkpoint
				info, err := manager.Create(cmd.Context(), tag, description)
				if err != nil {
					return fmt.Errorf("failed to create checkpoint: %w", err)
				}

				cmd.Printf("%s Created checkpoint %s (%s)\n",
					cli.SuccessStyle.Render(cli.SuccessIcon),
					cli.InfoStyle.Render(info.ID),
					formatFileSize(info.FileSize))
				if info.Description != "" {
					cmd.Printf("  Description: %s\n", info.Description)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "Checkpoint tag/name (auto-generated if not provided)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description of the checkpoint")

	return cmd
}

func listCheckpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all checkpoints",
		Long:  `Display all available checkpoints with their metadata.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCheckpoints(cmd, func(manager *storage.CheckpointManager) error {
				checkpoints, err := manager.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list checkpoints: %w", err)
				}
				if len(checkpoints) == 0 {
					cmd.Println(cli.SubtleStyle.Render("No checkpoints found."))
					return nil
				}

				// Create table
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				headerStyle := lipgloss.NewStyle().Bold(true).Foreground(cli.PrimaryColor)
				fmt.Fprintln(w, strings.Join([]string{
					headerStyle.Render("NAME"),
					headerStyle.Render("CREATED"),
					headerStyle.Render("SIZE"),
					headerStyle.Render("IMPORTS"),
					headerStyle.Render("TRANSACTIONS"),
					headerStyle.Render("ACCOUNTS"),
					headerStyle.Render("TYPE"),
				}, "\t"))

				// Rows
				now := time.Now()
				for _, cp := range checkpoints {
					typeLabel := "manual"
					if cp.IsAuto {
						typeLabel = "auto"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
						cli.InfoStyle.Render(cp.ID),
						formatRelativeTime(cp.CreatedAt, now),
						formatFileSize(cp.FileSize),
						cp.Processes,
						cp.Transactions,
						cp.Accounts,
						cli.SubtleStyle.Render(typeLabel),
					)
				}
				return w.Flush()
			})
		},
	}
}

func restoreCheckpointCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <checkpoint-id>",
		Short: "Restore database from a checkpoint",
		Long:  `Replace the current database with a checkpoint.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withCheckpoints(cmd, func(manager *storage.CheckpointManager) error {
				info, err := findCheckpoint(cmd, manager, id)
				if err != nil {
					return err
				}

				// Confirm unless force flag is set
				if !force {
					cmd.Printf("%s This will replace your current database with checkpoint %s.\n",
						cli.WarningStyle.Render(cli.WarningIcon),
						cli.InfoStyle.Render(id))
					cmd.Printf("  Created: %s\n", info.CreatedAt.Format(time.DateTime))
					if info.Description != "" {
						cmd.Printf("  Description: %s\n", info.Description)
					}
					ok, err := confirm(cmd, "Continue?")
					if err != nil || !ok {
						cmd.Println(cli.SubtleStyle.Render("Restore canceled."))
						return err
					}
				}

				if err := manager.Restore(cmd.Context(), id); err != nil {
					return fmt.Errorf("failed to restore checkpoint: %w", err)
				}
				cmd.Printf("%s Restored from checkpoint %s\n",
					cli.SuccessStyle.Render(cli.SuccessIcon),
					cli.InfoStyle.Render(id))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}

func deleteCheckpointCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <checkpoint-id>",
		Short: "Delete a checkpoint",
		Long:  `Permanently remove a checkpoint.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withCheckpoints(cmd, func(manager *storage.CheckpointManager) error {
				info, err := findCheckpoint(cmd, manager, id)
				if err != nil {
					return err
				}

				// Confirm unless force flag is set
				if !force {
					cmd.Printf("%s This will permanently delete checkpoint %s.\n",
						cli.WarningStyle.Render(cli.WarningIcon),
						cli.InfoStyle.Render(id))
					cmd.Printf("  Created: %s\n", info.CreatedAt.Format(time.DateTime))
					cmd.Printf("  Size: %s\n", formatFileSize(info.FileSize))
					ok, err := confirm(cmd, "Continue?")
					if err != nil || !ok {
						cmd.Println(cli.SubtleStyle.Render("Deletion canceled."))
						return err
					}
				}

				if err := manager.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("failed to delete checkpoint: %w", err)
				}
				cmd.Printf("%s Deleted checkpoint %s\n",
					cli.SuccessStyle.Render(cli.SuccessIcon),
					cli.InfoStyle.Render(id))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}
