package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ensemble-dev/ensemble/pkg/ports"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Probe the configured devices and list their capabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		ctx := cmd.Context()
		orc, cleanup, err := newOrchestrator(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		for name := range cfg.Devices {
			info, err := orc.Connect(ctx, ports.DeviceSelector{Name: name})
			if err != nil {
				fmt.Printf("%-20s unreachable: %v\n", name, err)
				continue
			}
			fmt.Printf("%-20s session %d\n", info.Name, info.ID)
		}

		// Capability responses arrive asynchronously.
		time.Sleep(time.Second)
		caps := orc.Capabilities()
		if len(caps) == 0 {
			fmt.Println("no capabilities declared")
			return nil
		}
		fmt.Println("capabilities:")
		for _, c := range caps {
			if c.Description != "" {
				fmt.Printf("  %-20s %s\n", c.Name, c.Description)
			} else {
				fmt.Printf("  %s\n", c.Name)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
