package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Manage the stored action library",
}

var actionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		store, closeStore, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		actions, err := store.List(ctx)
		if err != nil {
			return err
		}
		if len(actions) == 0 {
			fmt.Println("no actions stored")
			return nil
		}
		for _, a := range actions {
			fmt.Printf("%-20s %-24s %d instruction(s)\n", a.ID, a.Name, len(a.Instructions))
		}
		return nil
	},
}

var actionsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import actions from an exported collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		orc, cleanup, err := newOrchestrator(ctx, cfg, newLogger(cfg))
		if err != nil {
			return err
		}
		defer cleanup()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		n, err := orc.ImportActions(ctx, raw)
		if err != nil {
			return fmt.Errorf("imported %d before failing: %w", n, err)
		}
		fmt.Printf("imported %d action(s)\n", n)
		return nil
	},
}

var actionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all stored actions to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		orc, cleanup, err := newOrchestrator(ctx, cfg, newLogger(cfg))
		if err != nil {
			return err
		}
		defer cleanup()

		raw, err := orc.ExportActions(ctx)
		if err != nil {
			return err
		}
		fmt.Println(string(raw))
		return nil
	},
}

var actionsDeleteCmd = &cobra.Command{
	Use:   "delete <action-id>",
	Short: "Delete a stored action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		store, closeStore, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()
		return store.Delete(ctx, args[0])
	},
}

func init() {
	actionsCmd.AddCommand(actionsListCmd)
	actionsCmd.AddCommand(actionsImportCmd)
	actionsCmd.AddCommand(actionsExportCmd)
	actionsCmd.AddCommand(actionsDeleteCmd)
	rootCmd.AddCommand(actionsCmd)
}
