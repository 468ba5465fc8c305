package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fentz26/taskboard/internal/models"
	"github.com/fentz26/taskboard/internal/scheduler"
	"github.com/fentz26/taskboard/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill a development database with demo tasks",
	Long: `Creates demo rows in the scheduler tables. With --run it then keeps
executing due tasks until interrupted, so the dashboard has live changes
to show.`,
	RunE: runSeed,
}

var (
	seedTasks    int
	seedRun      bool
	seedFailRate float64
	seedWorkers  int
)

var demoTaskNames = []string{"send-newsletter", "sync-inventory", "cleanup-sessions", "generate-report", "charge-subscriptions"}

func init() {
	seedCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (default from config)")
	seedCmd.Flags().IntVar(&seedTasks, "tasks", 20, "Number of task instances to create")
	seedCmd.Flags().BoolVar(&seedRun, "run", false, "Keep executing due tasks until interrupted")
	seedCmd.Flags().Float64Var(&seedFailRate, "fail-rate", 0.2, "Share of executions that fail when running")
	seedCmd.Flags().IntVar(&seedWorkers, "workers", 4, "Concurrent executions when running")
}

func runSeed(cmd *cobra.Command, args []string) error {
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	s, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	now := time.Now()
	for i := 0; i < seedTasks; i++ {
		t := models.Task{
			TaskName:      demoTaskNames[i%len(demoTaskNames)],
			TaskInstance:  uuid.New().String()[:8],
			TaskData:      fmt.Sprintf(`{"batch":%d}`, i),
			ExecutionTime: now.Add(time.Duration(i*5) * time.Second),
		}
		if err := s.UpsertTask(t); err != nil {
			return err
		}
	}
	fmt.Printf("Created %d tasks in %s\n", seedTasks, cfg.DBPath)

	if !seedRun {
		return nil
	}

	schedCfg := scheduler.DefaultConfig()
	schedCfg.Workers = seedWorkers
	schedCfg.FailureRate = seedFailRate
	sched := scheduler.New(s, schedCfg, nil)
	sched.SetLogger(newLogger(cfg, cfg.LogFile, os.Stderr).WithField("component", "scheduler"))
	sched.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	sched.Stop()
	fmt.Printf("Executed %d tasks\n", sched.GetStats().Executed)
	return nil
}
