package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/classify-cli/internal/job"
	"github.com/sells-group/classify-cli/internal/model"
	"github.com/sells-group/classify-cli/internal/store"
)

var (
	jobsStatus string
	jobsLimit  int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage classification jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		jobs, err := st.ListJobs(ctx, store.JobFilter{
			Status: model.JobStatus(jobsStatus),
			Limit:  jobsLimit,
		})
		if err != nil {
			return err
		}

		for _, j := range jobs {
			fmt.Printf("%s  %-10s  %-17s  %5.1f%%  %s\n",
				j.ID, j.Status, j.Stage, j.Progress*100, j.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		j, err := st.GetJob(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(j)
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a running or pending job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		cancelled, err := st.CancelJob(ctx, args[0], job.CancelReason)
		if err != nil {
			return err
		}
		if cancelled {
			fmt.Printf("job %s cancelled\n", args[0])
		} else {
			fmt.Printf("job %s already finished\n", args[0])
		}
		return nil
	},
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status")
	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 50, "max jobs to list")
	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsCancelCmd)
	rootCmd.AddCommand(jobsCmd)
}
