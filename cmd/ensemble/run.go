package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ensemble-dev/ensemble/pkg/domain"
	"github.com/ensemble-dev/ensemble/pkg/ports"
)

var runCmd = &cobra.Command{
	Use:   "run <action-id>",
	Short: "Connect to devices and run an action",
	Long: `Connects to every device named in the configuration, waits for the
run to finish, and prints per-instruction outcomes. Interrupt once for a
graceful stop at the iteration boundary, twice to abort immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		repeat, _ := cmd.Flags().GetBool("repeat")
		mode := domain.ModeSinglePass
		if repeat {
			mode = domain.ModeRepeat
		}

		ctx := cmd.Context()
		orc, cleanup, err := newOrchestrator(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		if len(cfg.Devices) == 0 {
			return fmt.Errorf("no devices configured")
		}
		for name := range cfg.Devices {
			info, err := orc.Connect(ctx, ports.DeviceSelector{Name: name})
			if err != nil {
				logger.Warn("device unreachable", "device", name, "err", err)
				continue
			}
			fmt.Printf("connected %s (session %d)\n", info.Name, info.ID)
		}

		evs, cancel := orc.Events()
		defer cancel()

		if err := orc.Run(ctx, args[0], mode); err != nil {
			return err
		}

		// First interrupt stops gracefully, a second one forces the abort.
		sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		go func() {
			<-sigCtx.Done()
			if ctx.Err() != nil {
				return
			}
			fmt.Println("stop requested, finishing current iteration (interrupt again to abort)")
			orc.Stop()
			stop()

			forceCtx, cancelForce := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer cancelForce()
			<-forceCtx.Done()
			if ctx.Err() == nil {
				orc.ForceStop()
			}
		}()

		for ev := range evs {
			switch ev.Type {
			case domain.EventStepDone:
				for _, outcome := range ev.Step.Outcomes {
					if outcome.OK() {
						fmt.Printf("  [%d.%d] %s -> %s ok\n", ev.Step.Iteration, ev.Step.Index, ev.Step.Capability, outcome.SessionName)
					} else {
						fmt.Printf("  [%d.%d] %s -> %s FAILED: %s\n", ev.Step.Iteration, ev.Step.Index, ev.Step.Capability, outcome.SessionName, outcome.Error)
					}
				}
			case domain.EventRunPhase:
				switch ev.Run.Phase {
				case domain.PhaseCompleted:
					fmt.Printf("run completed after %d iteration(s)\n", ev.Run.Iterations)
					return nil
				case domain.PhaseFailed:
					return fmt.Errorf("run failed: %s", ev.Run.Error)
				}
			}
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("repeat", false, "Repeat the action until stopped")
	rootCmd.AddCommand(runCmd)
}
