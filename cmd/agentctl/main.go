// Command agentctl is a small flag-driven operator tool, grounded on
// cmd/apikey/main.go's pattern of talking directly to the store instead of
// through an RPC layer. It reads (and, for cancel, marks) job status
// directly against the same database the worker and webhookd processes
// use.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rezkam/agentforge/internal/config"
	"github.com/rezkam/agentforge/internal/domain"
	"github.com/rezkam/agentforge/internal/jobstatus/sqlstore"
	"github.com/rezkam/agentforge/internal/ptr"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadAgentCtlConfig()
	if err != nil {
		fatalf("load config: %v", err)
	}

	driver := sqlstore.DriverSQLite
	if cfg.Database.Driver == "postgres" {
		driver = sqlstore.DriverPostgres
	}

	ctx := context.Background()
	db, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:          driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		fatalf("connect to database: %v", err)
	}
	defer db.Close()

	store := sqlstore.NewStore(db, driver)

	switch os.Args[1] {
	case "jobs":
		runJobs(store, os.Args[2:])
	case "metrics":
		runMetrics(store, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func runJobs(store *sqlstore.Store, args []string) {
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("jobs list", flag.ExitOnError)
		status := fs.String("status", "", "filter by status (queued, running, succeeded, failed, cancelled, retrying)")
		jobType := fs.String("type", "", "filter by job type")
		skip := fs.Int("skip", 0, "number of results to skip")
		take := fs.Int("take", 50, "maximum number of results")
		fs.Parse(args[1:])

		var (
			results []domain.JobStatusInfo
			err     error
		)
		switch {
		case *status != "":
			results, err = store.ListByStatus(domain.JobStatus(*status), *skip, *take)
		case *jobType != "":
			results, err = store.ListByType(*jobType, *skip, *take)
		default:
			// No filter given: queued is the operator's most common
			// question ("what's waiting to run?").
			results, err = store.ListByStatus(domain.StatusQueued, *skip, *take)
		}
		if err != nil {
			fatalf("list jobs: %v", err)
		}
		printJobs(results)

	case "show":
		fs := flag.NewFlagSet("jobs show", flag.ExitOnError)
		fs.Parse(args[1:])
		if fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "usage: agentctl jobs show <job-id>")
			os.Exit(1)
		}
		info, ok, err := store.Get(fs.Arg(0))
		if err != nil {
			fatalf("get job: %v", err)
		}
		if !ok {
			fmt.Fprintf(os.Stderr, "job %s not found\n", fs.Arg(0))
			os.Exit(1)
		}
		printJobs([]domain.JobStatusInfo{info})

	case "cancel":
		fs := flag.NewFlagSet("jobs cancel", flag.ExitOnError)
		fs.Parse(args[1:])
		if fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "usage: agentctl jobs cancel <job-id>")
			os.Exit(1)
		}
		jobID := fs.Arg(0)
		info, ok, err := store.Get(jobID)
		if err != nil {
			fatalf("get job: %v", err)
		}
		if !ok {
			fmt.Fprintf(os.Stderr, "job %s not found\n", jobID)
			os.Exit(1)
		}
		if isTerminal(info.Status) {
			fmt.Printf("job %s is already %s\n", jobID, info.Status)
			return
		}
		// Best-effort: agentctl runs out-of-process from the worker that
		// holds the job's live CancellationHandle, so it can only record
		// the cancellation request here. The worker does not read this
		// status: its next status write for a running job replaces it.
		info.Status = domain.StatusCancelled
		info.CompletedAt = ptr.To(time.Now())
		if err := store.Set(info); err != nil {
			fatalf("cancel job: %v", err)
		}
		fmt.Printf("job %s marked cancelled\n", jobID)

	default:
		usage()
		os.Exit(1)
	}
}

func runMetrics(store *sqlstore.Store, args []string) {
	metrics, err := store.Metrics()
	if err != nil {
		fatalf("get metrics: %v", err)
	}
	for _, status := range []domain.JobStatus{
		domain.StatusQueued, domain.StatusRunning, domain.StatusSucceeded,
		domain.StatusFailed, domain.StatusCancelled, domain.StatusRetrying,
	} {
		fmt.Printf("%-12s %d\n", status, metrics[status])
	}
}

func printJobs(jobs []domain.JobStatusInfo) {
	for _, j := range jobs {
		fmt.Printf("%-36s %-14s %-10s attempts=%d source=%s\n", j.JobID, j.Type, j.Status, j.Attempts, j.Source)
		if j.LastError != "" {
			fmt.Printf("  last_error: %s\n", j.LastError)
		}
	}
}

func isTerminal(s domain.JobStatus) bool {
	switch s {
	case domain.StatusSucceeded, domain.StatusFailed, domain.StatusCancelled:
		return true
	default:
		return false
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  agentctl jobs list [--status=] [--type=] [--skip=] [--take=]
  agentctl jobs show <job-id>
  agentctl jobs cancel <job-id>
  agentctl metrics`)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
