package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/tracktime/internal/backend"
	"github.com/Tiliavir/tracktime/internal/backend/registry"
	"github.com/Tiliavir/tracktime/internal/descache"
	"github.com/Tiliavir/tracktime/internal/model"
)

var (
	taskType    string
	taskProject string
	taskID      string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Show the tracker's id, link and title of a task",
	Args:  cobra.NoArgs,
	RunE:  runTask,
}

func init() {
	taskCmd.Flags().StringVarP(&taskType, "type", "t", "", "Task type, e.g. gitlab (gl)")
	taskCmd.Flags().StringVarP(&taskProject, "project", "p", "", "Project")
	taskCmd.Flags().StringVarP(&taskID, "taskid", "i", "", "Task id")
	_ = taskCmd.MarkFlagRequired("type")
	_ = taskCmd.MarkFlagRequired("taskid")
}

func runTask(cmd *cobra.Command, _ []string) error {
	entry := model.Entry{Type: model.NormalizeType(taskType), Project: taskProject, TaskID: taskID}

	backends, err := registry.All(env.cfg, backendDeps())
	if err != nil {
		return err
	}
	b, ok := backend.For(backends, entry.Type)
	if !ok {
		return &model.ValidationError{Field: "type", Reason: fmt.Sprintf("no backend handles type %q", taskType)}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Backend: %s\n", b.Name())
	if id, ok := backend.FormattedTaskID(b, entry); ok {
		fmt.Fprintf(out, "Task: %s\n", id)
	}
	if link, ok := backend.TaskLink(b, entry); ok {
		fmt.Fprintf(out, "Link: %s\n", link)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), env.cfg.Sync.RequestTimeout)
	defer cancel()
	cache, err := descache.Open(env.cfg.CacheDir, env.log)
	if err != nil {
		env.log.Warn().Err(err).Msg("task description cache unavailable")
	} else {
		defer cache.Close()
	}
	if desc := lookupDescription(ctx, b, entry, cache); desc != "" {
		fmt.Fprintf(out, "Title: %s\n", desc)
	}
	return nil
}
