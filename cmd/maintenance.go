package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskd/internal/database"
	"taskd/internal/models"
	"taskd/internal/repository"
	"taskd/internal/service"
	"taskd/pkg/logger"
)

var (
	importFile string
	seedCount  int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Copy every task from a file store into PostgreSQL",
	Long: "Reads a JSON or YAML task document and inserts its tasks into the database table, " +
		"keeping their ids. Tasks whose id already exists in the table are left alone.",
	RunE: runImport,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Add sample tasks to the configured backend",
	RunE:  runSeed,
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "task document to import (defaults to TASKS_FILE)")
	seedCmd.Flags().IntVar(&seedCount, "count", 100, "number of tasks to add")
}

func runImport(cmd *cobra.Command, _ []string) error {
	closer := setupLogging(false)
	defer closer.Close()
	ctx := cmd.Context()

	path := importFile
	if path == "" {
		path = cfg.TasksFile
	}
	src := repository.NewFileStore(repository.FileOptions{Path: path, LockTimeout: cfg.LockTimeout})
	tasks, err := src.List(ctx, models.AllTasks())
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	db, err := database.Open(ctx, database.PoolOptions{
		URL:         cfg.DatabaseURL,
		MaxOpen:     cfg.DBPoolSize,
		ConnTimeout: cfg.DBTimeout,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	dst, err := repository.NewPostgresStore(db, repository.PostgresOptions{Table: cfg.DBTable, Timeout: cfg.DBTimeout})
	if err != nil {
		return err
	}

	start := time.Now()
	inserted, err := dst.Import(ctx, tasks)
	if err != nil {
		return err
	}
	logger.Info(ctx, "Import finished", "file", path, "read", len(tasks), "inserted", inserted, "skipped", len(tasks)-inserted, "elapsed", time.Since(start))
	fmt.Printf("Imported %d of %d tasks from %s\n", inserted, len(tasks), path)
	return nil
}

// seedInput describes the n-th sample task: priorities rotate and every
// third task is due within the next two weeks.
func seedInput(n int, today time.Time) service.AddTaskInput {
	in := service.AddTaskInput{
		Title:    fmt.Sprintf("Sample task %d", n),
		Priority: string(models.Priorities[n%len(models.Priorities)]),
	}
	if n%3 == 0 {
		in.DueDate = today.AddDate(0, 0, n%14).Format(models.DateLayout)
	}
	return in
}

func runSeed(cmd *cobra.Command, _ []string) error {
	if seedCount <= 0 {
		return fmt.Errorf("--count must be positive, got %d", seedCount)
	}
	closer := setupLogging(false)
	defer closer.Close()
	ctx := cmd.Context()

	store, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	svc := service.New(store)

	start := time.Now()
	today := time.Now()
	for n := 1; n <= seedCount; n++ {
		if _, err := svc.AddTask(ctx, seedInput(n, today)); err != nil {
			return fmt.Errorf("add sample task %d: %w", n, err)
		}
		if n%50 == 0 || n == seedCount {
			fmt.Printf("\rAdded %d / %d", n, seedCount)
		}
	}
	fmt.Printf("\nDone: %d tasks in %v (%s backend)\n", seedCount, time.Since(start), store.Backend())
	return nil
}
