package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fentz26/taskboard/internal/client"
	"github.com/fentz26/taskboard/internal/models"
	"github.com/fentz26/taskboard/internal/tui"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and manage scheduled tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled tasks",
	RunE:  runTaskList,
}

var taskHistoryCmd = &cobra.Command{
	Use:   "history [name/instance]",
	Short: "Show execution history, for one task or all",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTaskHistory,
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete [name/instance]",
	Short: "Delete a task instance",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDelete,
}

var taskPollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Show what changed since the last listing",
	RunE:  runTaskPoll,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent dashboard actions",
	RunE:  runAudit,
}

var (
	listFilter   string
	listSort     string
	listDesc     bool
	listName     string
	listInstance string
	listExact    bool
	listPage     int
	pollLogs     bool
	assumeYes    bool
	auditLimit   int
)

func init() {
	taskCmd.AddCommand(taskListCmd, taskHistoryCmd, taskDeleteCmd, taskPollCmd, auditCmd)

	for _, c := range []*cobra.Command{taskListCmd, taskHistoryCmd, taskPollCmd} {
		c.Flags().StringVar(&listFilter, "filter", "ALL", "Status filter (ALL, FAILED, RUNNING, SCHEDULED, SUCCEEDED)")
		c.Flags().StringVar(&listName, "name", "", "Search by task name")
		c.Flags().StringVar(&listInstance, "instance", "", "Search by task instance")
		c.Flags().BoolVar(&listExact, "exact", false, "Match name and instance exactly")
		c.Flags().BoolVar(&listDesc, "desc", false, "Sort descending")
	}
	taskListCmd.Flags().StringVar(&listSort, "sort", "DEFAULT", "Sort by DEFAULT, TASK_NAME or TASK_INSTANCE")
	taskPollCmd.Flags().StringVar(&listSort, "sort", "DEFAULT", "Sort by DEFAULT, TASK_NAME or TASK_INSTANCE")
	taskListCmd.Flags().IntVar(&listPage, "page", 0, "Page number, starting at 0")
	taskHistoryCmd.Flags().IntVar(&listPage, "page", 0, "Page number, starting at 0")
	taskPollCmd.Flags().BoolVar(&pollLogs, "logs", false, "Poll execution history instead of tasks")

	taskDeleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "Number of entries to show")
}

func newClient() *client.Client {
	return client.New(cfg.APIAddr)
}

func queryFromFlags() models.QueryParams {
	return models.QueryParams{
		Filter:                 models.Filter(strings.ToUpper(listFilter)),
		Sorting:                models.SortField(strings.ToUpper(listSort)),
		Asc:                    !listDesc,
		SearchTermTaskName:     listName,
		SearchTermTaskInstance: listInstance,
		TaskNameExactMatch:     listExact,
		TaskInstanceExactMatch: listExact,
	}.Normalize()
}

func runTaskList(cmd *cobra.Command, args []string) error {
	page, err := newClient().ListTasks(cmd.Context(), queryFromFlags(), listPage, cfg.PageSize)
	if err != nil {
		return err
	}
	if len(page.Items) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tINSTANCE\tSTATUS\tNEXT RUN\tFAILURES\tPICKED BY")
	for _, t := range page.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			truncate(t.TaskName, 30),
			truncate(t.TaskInstance, 30),
			t.Status(),
			tui.FormatTime(t.ExecutionTime),
			t.ConsecutiveFailures,
			t.PickedBy,
		)
	}
	w.Flush()
	fmt.Printf("\nPage %d of %d, %s tasks\n", listPage+1, max(page.NumberOfPages, 1), humanize.Comma(int64(page.NumberOfItems)))
	return nil
}

func runTaskHistory(cmd *cobra.Command, args []string) error {
	q := queryFromFlags()
	if len(args) == 1 {
		id, err := parseTaskRef(args[0])
		if err != nil {
			return err
		}
		q.TaskName = id.Name
		q.TaskID = id.Instance
	}

	page, err := newClient().ListLogs(cmd.Context(), q, listPage, cfg.PageSize)
	if err != nil {
		return err
	}
	if len(page.Items) == 0 {
		fmt.Println("No executions found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tNAME\tINSTANCE\tFINISHED\tDURATION\tEXCEPTION")
	for _, e := range page.Items {
		row := tui.FormatLogRow(e)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%dms\t%s\n",
			row.Status, row.ID, truncate(e.TaskName, 30), truncate(row.Instance, 30),
			row.Finished, e.DurationMs, truncate(row.Class, 40))
	}
	w.Flush()
	fmt.Printf("\nPage %d of %d, %s executions\n", listPage+1, max(page.NumberOfPages, 1), humanize.Comma(int64(page.NumberOfItems)))
	return nil
}

func runTaskDelete(cmd *cobra.Command, args []string) error {
	id, err := parseTaskRef(args[0])
	if err != nil {
		return err
	}

	if !assumeYes {
		fmt.Printf("Are you sure you want to delete, %s Task-ID:%s [y/N] ", id.Name, id.Instance)
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			fmt.Println("Cancelled")
			return nil
		}
	}

	err = newClient().DeleteTask(cmd.Context(), id.Instance, id.Name)
	if errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("task %s not found", id)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Deleted task %s\n", id)
	return nil
}

func runTaskPoll(cmd *cobra.Command, args []string) error {
	c := newClient()
	q := queryFromFlags()

	poll := c.PollTasks
	if pollLogs {
		poll = c.PollLogs
	}
	resp, err := poll(cmd.Context(), q)
	if err != nil {
		return err
	}
	printPoll(resp)
	return nil
}

func printPoll(resp models.PollResponse) {
	fmt.Printf("Failed:    %d\n", resp.NewFailures)
	fmt.Printf("Succeeded: %d\n", resp.NewSucceeded)
	fmt.Printf("Running:   %d\n", resp.NewRunning)
	fmt.Printf("Added:     %d\n", resp.NewTasks)
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
	defer cancel()

	entries, err := newClient().ListAudit(ctx, auditLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No audit entries")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tACTION\tOUTCOME\tTASK\tDETAILS")
	for _, e := range entries {
		task := ""
		if e.TaskName != "" {
			task = models.TaskID{Name: e.TaskName, Instance: e.Instance}.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", humanize.Time(e.Timestamp), e.Action, e.Outcome, task, truncate(e.Details, 50))
	}
	w.Flush()
	return nil
}

// --- Helpers ---

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
