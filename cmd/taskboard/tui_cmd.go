package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/taskboard/internal/client"
	"github.com/fentz26/taskboard/internal/config"
	"github.com/fentz26/taskboard/internal/models"
	"github.com/fentz26/taskboard/internal/tui"
)

var (
	noAutostart bool
	historyOf   string
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive dashboard",
	RunE:  runTUI,
}

func init() {
	tuiCmd.Flags().BoolVar(&noAutostart, "no-autostart", false, "Do not start a local daemon when none is reachable")
	tuiCmd.Flags().StringVar(&historyOf, "history", "", "Open the history of a task, as name/instance")
}

func runTUI(cmd *cobra.Command, args []string) error {
	// The alt screen owns the terminal, so the TUI logs to a file.
	log := newLogger(cfg, filepath.Join(config.Dir(), "tui.log"), io.Discard)
	c := client.New(cfg.APIAddr, client.WithLogger(log))

	// 1. Check if Daemon is running
	if !isDaemonRunning(c) {
		if noAutostart {
			return fmt.Errorf("daemon not reachable at %s", cfg.APIAddr)
		}
		fmt.Println("⚡ taskboard daemon not running. Starting background service...")
		if err := startDaemon(c); err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}
	}

	route := ""
	if historyOf != "" {
		id, err := parseTaskRef(historyOf)
		if err != nil {
			return err
		}
		route = tui.HistoryPath(id)
	}

	// 2. Launch TUI
	app := tui.New(c, tui.Options{
		PollInterval: cfg.PollInterval,
		PageSize:     cfg.PageSize,
		Route:        route,
		Logger:       log,
	})
	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func isDaemonRunning(c *client.Client) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := c.Health(ctx)
	return err == nil
}

func startDaemon(c *client.Client) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	args := []string{"daemon"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	cmd := exec.Command(exe, args...)
	// Detach process so it survives TUI exit
	configureDaemonProc(cmd)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return err
	}

	fmt.Print("   Waiting for daemon...")
	for i := 0; i < 20; i++ { // Wait up to 5 seconds
		if isDaemonRunning(c) {
			fmt.Println(" Done.")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
		fmt.Print(".")
	}
	fmt.Println(" Timeout!")
	return fmt.Errorf("daemon started but API not reachable at %s", c.BaseURL())
}

// parseTaskRef reads "name/instance". The instance may itself contain
// slashes; the name may not.
func parseTaskRef(ref string) (models.TaskID, error) {
	name, instance, ok := strings.Cut(ref, "/")
	if ok && name != "" && instance != "" {
		return models.TaskID{Name: name, Instance: instance}, nil
	}
	return models.TaskID{}, fmt.Errorf("task reference must be name/instance, got %q", ref)
}
