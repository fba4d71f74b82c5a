package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	database "github.com/drummonds/pdf2img/database"
	engine "github.com/drummonds/pdf2img/engine"
)

// jobRecorder writes one run to the history database. A nil recorder does nothing.
type jobRecorder struct {
	repo *database.BunDB
	job  *database.Job
}

// startJob records a running job, or returns nil when history is disabled or unavailable
func startJob(historyPath string, jobType database.JobType, source string) *jobRecorder {
	if historyPath == "" {
		return nil
	}
	repo, err := database.NewRepository(historyPath)
	if err != nil {
		Logger.Warn("Job history unavailable", "path", historyPath, "error", err)
		return nil
	}

	if abs, err := filepath.Abs(source); err == nil {
		source = abs
	}
	job, err := repo.CreateJob(jobType, source, "")
	if err == nil {
		err = repo.UpdateJobStatus(job.ID, database.JobStatusRunning, fmt.Sprintf("Processing %s", filepath.Base(source)))
	}
	if err != nil {
		Logger.Warn("Unable to record job", "path", historyPath, "error", err)
		repo.Close()
		return nil
	}
	return &jobRecorder{repo: repo, job: job}
}

// finish marks the job completed with the written files, or failed with runErr
func (r *jobRecorder) finish(res result, runErr error) {
	if r == nil {
		return
	}
	defer r.repo.Close()

	var err error
	if runErr != nil {
		err = r.repo.UpdateJobError(r.job.ID, runErr.Error())
	} else {
		var data []byte
		data, err = json.Marshal(res)
		if err == nil {
			err = r.repo.CompleteJob(r.job.ID, len(res.Pages)+len(res.Images), string(data))
		}
	}
	if err != nil {
		Logger.Warn("Unable to update job history", "job", r.job.ID.String(), "error", err)
	}
}

func newHistoryCmd(historyPath *string) *cobra.Command {
	var limit int
	var prune time.Duration
	var asJSON bool

	cmd := &cobra.Command{
		Use:           "history",
		Short:         "List recent runs recorded in the history database",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if *historyPath == "" {
				return fmt.Errorf("%w: no history database, use --history or PDF2IMG_HISTORY_DB", engine.ErrInvalidOption)
			}
			if limit < 1 {
				return fmt.Errorf("%w: limit must be positive, got %d", engine.ErrInvalidOption, limit)
			}

			repo, err := database.NewRepository(*historyPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			out := cmd.OutOrStdout()
			if cmd.Flags().Changed("prune") {
				deleted, err := repo.DeleteOldJobs(prune)
				if err != nil {
					return err
				}
				if !asJSON {
					fmt.Fprintf(out, "Deleted %d job(s) older than %s\n", deleted, prune)
				}
			}

			jobs, err := repo.GetRecentJobs(limit, 0)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No jobs recorded")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWHEN\tTYPE\tSTATUS\tFILES\tSOURCE\tERROR")
			for _, job := range jobs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					job.ID, humanize.Time(job.CreatedAt), job.Type, job.Status, job.Outputs, job.Source, job.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of jobs to show")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete finished jobs older than this first, e.g. 720h (0s deletes all finished jobs)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print jobs as JSON")
	return cmd
}
