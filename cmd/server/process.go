package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"video-narrator/core/models"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

type processFlags struct {
	video       string
	appName     string
	description string
	template    string
}

func newProcessCommand() *cobra.Command {
	var f processFlags
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run one video through the pipeline and wait for the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.video, "video", "", "path to the demo video")
	cmd.Flags().StringVar(&f.appName, "app-name", "", "product name used in the script")
	cmd.Flags().StringVar(&f.description, "description", "", "short product description")
	cmd.Flags().StringVar(&f.template, "template", "", "script template id")
	cmd.MarkFlagRequired("video")
	cmd.MarkFlagRequired("app-name")
	cmd.MarkFlagRequired("description")
	return cmd
}

func runProcess(ctx context.Context, f processFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := os.Stat(f.video); err != nil {
		return fmt.Errorf("demo video: %w", err)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// the pipeline deletes its source after a successful upload, so it works
	// on a copy
	src, err := a.media.CopyFile(f.video, a.workspace.UploadPath(uuid.NewString()+strings.ToLower(filepath.Ext(f.video))))
	if err != nil {
		return err
	}

	job := &models.Job{
		ID:          uuid.NewString(),
		AppName:     strings.TrimSpace(f.appName),
		Description: strings.TrimSpace(f.description),
		Template:    strings.TrimSpace(f.template),
		SourcePath:  src,
	}
	if err := a.registry.Create(ctx, job); err != nil {
		return err
	}

	started := time.Now()
	runErr := a.pipeline.Run(ctx, job.Clone())
	printJob(a.registry.Get(ctx, job.ID), time.Since(started))
	return runErr
}

func printJob(job *models.Job, elapsed time.Duration) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Job " + job.ID)
	t.AppendHeader(table.Row{"Field", "Value"})

	status := text.FgGreen.Sprint(job.Status)
	if job.Status == models.JobStatusFailed {
		status = text.FgRed.Sprint(job.Status)
	}
	t.AppendRows([]table.Row{
		{"Status", status},
		{"Message", job.Message},
		{"App", job.AppName},
		{"Elapsed", elapsed.Round(time.Millisecond)},
	})
	if len(job.Artifacts) > 0 {
		t.AppendSeparator()
		for _, art := range job.Artifacts {
			value := art.URI
			if art.Type == models.ArtifactTypeOutput {
				if info, err := os.Stat(art.URI); err == nil {
					value = fmt.Sprintf("%s (%s)", art.URI, humanize.Bytes(uint64(info.Size())))
				}
			}
			t.AppendRow(table.Row{string(art.Type), value})
		}
	}
	t.Render()
}
