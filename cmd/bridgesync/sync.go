package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/slatewood/bridgesync"
	"github.com/slatewood/bridgesync/internal/telemetry"
)

var (
	syncInterval time.Duration
	syncOnce     bool
	stateFile    string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run reconciliation cycles against the hub and tracker",
	Long: `Run the sync engine. By default this runs one cycle and exits; with
--interval it keeps cycling until interrupted. The last successful sync time
is persisted in the state file so the next cycle only pulls newer changes.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().DurationVar(&syncInterval, "interval", 0, "re-run continuously with this delay between cycles")
	syncCmd.Flags().BoolVar(&syncOnce, "once", false, "force a single cycle even when the config sets an interval")
	syncCmd.Flags().StringVar(&stateFile, "state-file", "", "path of the last-sync state file (default $HOME/.bridgesync/state.json)")
}

// syncState is the on-disk record between cycles.
type syncState struct {
	LastSyncAt *time.Time `json:"lastSyncAt"`
}

func statePath() string {
	if stateFile != "" {
		return stateFile
	}
	if p := viper.GetString("state-file"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "bridgesync-state.json"
	}
	return filepath.Join(home, ".bridgesync", "state.json")
}

func loadState(path string) (syncState, error) {
	var st syncState
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	return st, json.Unmarshal(data, &st)
}

func saveState(path string, st syncState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := telemetry.Init(ctx, "bridgesync", version); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
	}()

	plugin := &bridgesync.Plugin{}
	if err := plugin.Setup(setupParams()); err != nil {
		return err
	}
	defer plugin.Dispose()

	interval := syncInterval
	if interval == 0 {
		interval = viper.GetDuration("interval")
	}
	if syncOnce {
		interval = 0
	}

	path := statePath()
	st, err := loadState(path)
	if err != nil {
		return fmt.Errorf("load state %s: %w", path, err)
	}

	for {
		now := time.Now().UTC()
		status := plugin.Execute(ctx, st.LastSyncAt, now)
		if status == bridgesync.StatusSuccess {
			st.LastSyncAt = &now
			if err := saveState(path, st); err != nil {
				fmt.Fprintf(os.Stderr, "save state %s: %v\n", path, err)
			}
		}

		if interval == 0 {
			if status != bridgesync.StatusSuccess {
				return errors.New("sync cycle failed, see log output")
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}
