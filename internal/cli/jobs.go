package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lalithlochan/clipforge/internal/client"
)

func newCreateCommand(opts *options) *cobra.Command {
	var (
		module string
		params string
		key    string
		wait   bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a generation job",
		Long: `Create a generation job for a module. Re-running with the same --key
returns the original job instead of creating a new one.

Modules: image-to-video, image, text-to-speech, audio-to-video, ugc-video`,
		Example: `  clipctl create --module image --params '{"prompt":"a red fox","count":2}' --wait`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if module == "" {
				return fmt.Errorf("--module is required")
			}
			if !json.Valid([]byte(params)) {
				return fmt.Errorf("--params must be valid JSON")
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !wait {
				res, err := c.CreateJob(cmd.Context(), client.CreateJobRequest{
					Module:         module,
					Params:         json.RawMessage(params),
					IdempotencyKey: key,
				})
				if err != nil {
					return err
				}
				if opts.output == "json" {
					return writeJSON(out, res)
				}
				printCreated(out, res)
				return nil
			}

			session := client.NewSession(keyedAPI{c, key}, module)
			res, err := session.Submit(cmd.Context(), json.RawMessage(params))
			if err != nil {
				return err
			}
			if opts.output == "text" {
				printCreated(out, res)
			}
			job, err := c.WaitForJob(cmd.Context(), res.ID, func(j *client.Job) {
				session.Observe(j)
				if opts.output == "text" {
					printView(out, session.View())
				}
			})
			if err != nil {
				return err
			}
			return finish(out, opts.output, job)
		},
	}

	cmd.Flags().StringVar(&module, "module", "", "generation module")
	cmd.Flags().StringVar(&params, "params", "{}", "module parameters as JSON")
	cmd.Flags().StringVar(&key, "key", "", "idempotency key (generated when empty)")
	cmd.Flags().BoolVar(&wait, "wait", false, "follow the job until it finishes")
	return cmd
}

// keyedAPI pins the idempotency key chosen on the command line.
type keyedAPI struct {
	*client.Client
	key string
}

func (k keyedAPI) CreateJob(ctx context.Context, in client.CreateJobRequest) (*client.CreateJobResult, error) {
	in.IdempotencyKey = k.key
	return k.Client.CreateJob(ctx, in)
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show the current status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			job, err := c.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), job)
			}
			printJob(cmd.OutOrStdout(), job)
			return nil
		},
	}
}

func newWaitCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "wait [job-id]",
		Short: "Wait for a job to complete or fail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			job, err := c.WaitForJob(cmd.Context(), args[0], func(j *client.Job) {
				if opts.output == "text" {
					fmt.Fprintf(out, "%s %s\n", j.Status, progressText(j))
				}
			})
			if err != nil {
				return err
			}
			return finish(out, opts.output, job)
		},
	}
}

func newListCommand(opts *options) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your recent jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			jobs, err := c.ListJobs(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.output == "json" {
				return writeJSON(out, jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(out, "no jobs")
				return nil
			}
			for i := range jobs {
				j := &jobs[i]
				fmt.Fprintf(out, "%s  %-15s %-10s %s\n", j.ID, j.Module, j.Status, progressText(j))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of jobs")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of jobs to skip")
	return cmd
}

func finish(w io.Writer, output string, job *client.Job) error {
	if output == "json" {
		if err := writeJSON(w, job); err != nil {
			return err
		}
	} else {
		printJob(w, job)
	}
	if job.Status == client.StatusFailed {
		return fmt.Errorf("job %s failed", job.ID)
	}
	return nil
}

func printCreated(w io.Writer, res *client.CreateJobResult) {
	verb := "created"
	if res.Replayed {
		verb = "replayed"
	}
	fmt.Fprintf(w, "job %s %s (%s, key %s)\n", res.ID, verb, res.Status, res.IdempotencyKey)
}

func printView(w io.Writer, v client.View) {
	line := v.Status
	if v.Spinner {
		line += fmt.Sprintf(" %d%%", v.Progress)
	}
	if v.PreviewURL != "" && v.MediaURL == "" {
		line += " preview " + v.PreviewURL
	}
	fmt.Fprintln(w, line)
}

func printJob(w io.Writer, j *client.Job) {
	fmt.Fprintf(w, "id:       %s\n", j.ID)
	fmt.Fprintf(w, "module:   %s\n", j.Module)
	fmt.Fprintf(w, "status:   %s %s\n", j.Status, progressText(j))
	if j.PreviewURL != nil {
		fmt.Fprintf(w, "preview:  %s\n", *j.PreviewURL)
	}
	if len(j.FinalURLs) > 0 {
		fmt.Fprintf(w, "results:  %s\n", strings.Join(j.FinalURLs, "\n          "))
	}
	if j.ErrorMessage != nil {
		fmt.Fprintf(w, "error:    %s\n", *j.ErrorMessage)
	}
}

func progressText(j *client.Job) string {
	if j.Progress == nil {
		return ""
	}
	return fmt.Sprintf("%d%%", *j.Progress)
}
