package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для управления executions.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "execution",
		Aliases: []string{"exec"},
		Short:   "Manage executions",
	}

	cmd.AddCommand(
		newExecutionListCmd(clientFn, outputFn),
		newExecutionStartCmd(clientFn, outputFn),
		newExecutionShowCmd(clientFn, outputFn),
		newExecutionProgressCmd(clientFn, outputFn),
		newExecutionDelegationsCmd(clientFn, outputFn),
		newExecutionBlockersCmd(clientFn, outputFn),
		newExecutionBlockCmd(clientFn, outputFn),
		newExecutionResolveCmd(clientFn, outputFn),
		newExecutionEscalateCmd(clientFn, outputFn),
		newExecutionCompleteCmd(clientFn, outputFn),
		newExecutionFailCmd(clientFn, outputFn),
		newExecutionCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func newExecutionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			list, err := client.ListExecutions(state)
			if err != nil {
				return err
			}

			headers := []string{"ID", "TASK_ID", "STATE", "BLOCKERS", "ESCALATION", "CREATED"}
			rows := make([][]string, len(list))
			for i, e := range list {
				rows[i] = []string{e.ID, e.TaskID, e.State, strconv.Itoa(e.OpenBlockers), strconv.Itoa(e.EscalationLevel), e.CreatedAt}
			}

			out.Print(headers, rows, list)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state (analyzing, planning, delegated, in_progress, reviewing, testing, blocked)")

	return cmd
}

func newExecutionStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req StartExecutionRequest

	cmd := &cobra.Command{
		Use:   "start TITLE",
		Short: "Start an execution for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req.Task.Title = args[0]

			resp, err := client.StartExecution(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution started: %s", resp.ExecutionID))
			if resp.Warning != "" {
				out.Warn(resp.Warning)
			}
			out.Print(
				[]string{"ID", "STATE"},
				[][]string{{resp.ExecutionID, resp.State}},
				resp,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Task.ID, "task-id", "", "Task ID (generated if not specified)")
	cmd.Flags().StringVar(&req.Task.Description, "description", "", "Task description; \"- [ ] item\" lines become checklist items")
	cmd.Flags().StringSliceVar(&req.Task.AcceptanceCriteria, "criteria", nil, "Acceptance criteria (repeatable)")
	cmd.Flags().StringVar(&req.TeamID, "team-id", "", "Team ID")

	return cmd
}

func newExecutionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show execution details and log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			exec, err := client.GetExecution(args[0])
			if err != nil {
				return err
			}

			if out.IsJSON() {
				out.JSON(exec)
				return nil
			}

			out.Table(
				[]string{"ID", "TASK_ID", "STATE", "ESCALATION", "CREATED", "FINISHED"},
				[][]string{{exec.ID, exec.TaskID, exec.State, strconv.Itoa(exec.EscalationLevel), exec.CreatedAt, exec.FinishedAt}},
			)
			out.Newline()

			rows := make([][]string, len(exec.Log))
			for i, e := range exec.Log {
				rows[i] = []string{e.At, e.Kind, e.From, e.To, e.Reason}
			}
			out.Table([]string{"AT", "KIND", "FROM", "TO", "REASON"}, rows)
			return nil
		},
	}
}

func newExecutionProgressCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "progress ID",
		Short: "Show execution progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			p, err := client.GetProgress(args[0])
			if err != nil {
				return err
			}

			d := p.Delegations
			out.Print(
				[]string{"STATE", "PROGRESS", "BLOCKED", "BLOCKERS", "DELEGATIONS", "DONE", "FAILED"},
				[][]string{{
					p.State,
					strconv.Itoa(p.Percentage) + "%",
					strconv.FormatBool(p.IsBlocked),
					strconv.Itoa(p.OpenBlockers),
					strconv.Itoa(d.Total),
					strconv.Itoa(d.Done),
					strconv.Itoa(d.Failed),
				}},
				p,
			)
			return nil
		},
	}
}

func newExecutionDelegationsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delegations ID",
		Short: "List delegations of an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			ds, err := client.ListDelegations(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ID", "KIND", "TYPE", "WORKER", "STATUS", "DEPENDS_ON"}
			rows := make([][]string, len(ds))
			for i, d := range ds {
				rows[i] = []string{d.ID, d.Kind, d.Type, d.WorkerID, d.Status, strconv.Itoa(len(d.DependsOn))}
			}

			out.Print(headers, rows, ds)
			return nil
		},
	}
}

func newExecutionBlockersCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "blockers ID",
		Short: "List blockers of an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			bs, err := client.ListBlockers(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ID", "SEVERITY", "DESCRIPTION", "RESOLVED", "CREATED"}
			rows := make([][]string, len(bs))
			for i, b := range bs {
				resolved := "-"
				if b.Resolution != nil {
					resolved = *b.Resolution
				}
				rows[i] = []string{b.ID, b.Severity, b.Description, resolved, b.CreatedAt}
			}

			out.Print(headers, rows, bs)
			return nil
		},
	}
}

func newExecutionBlockCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var severity string

	cmd := &cobra.Command{
		Use:   "block ID DESCRIPTION",
		Short: "Record a blocker and move the execution to blocked",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			blockerID, err := client.CreateBlocker(args[0], CreateBlockerRequest{
				Description: args[1],
				Severity:    severity,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Blocker recorded: %s", blockerID))
			return nil
		},
	}

	cmd.Flags().StringVar(&severity, "severity", "medium", "Severity (low, medium, high, critical)")

	return cmd
}

func newExecutionResolveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var nextState string

	cmd := &cobra.Command{
		Use:   "resolve ID BLOCKER_ID RESOLUTION",
		Short: "Resolve a blocker and resume the execution",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			state, err := client.ResolveBlocker(args[0], args[1], ResolveBlockerRequest{
				Resolution: args[2],
				NextState:  nextState,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Blocker resolved, execution is %s", state))
			return nil
		},
	}

	cmd.Flags().StringVar(&nextState, "next-state", "in_progress", "State to resume in")

	return cmd
}

func newExecutionEscalateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var details string
	var attempted []string

	cmd := &cobra.Command{
		Use:   "escalate ID REASON",
		Short: "Escalate an execution to a human",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			escalationID, err := client.Escalate(args[0], EscalationRequest{
				Reason:             args[1],
				Details:            details,
				AttemptedSolutions: attempted,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Escalation sent: %s", escalationID))
			return nil
		},
	}

	cmd.Flags().StringVar(&details, "details", "", "Additional details")
	cmd.Flags().StringSliceVar(&attempted, "attempted", nil, "Attempted solutions (repeatable)")

	return cmd
}

func newExecutionCompleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var result []string

	cmd := &cobra.Command{
		Use:   "complete ID",
		Short: "Complete an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			payload, err := parseKeyValues(result)
			if err != nil {
				return err
			}

			state, err := client.CompleteExecution(args[0], payload)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution %s: %s", args[0], state))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&result, "result", nil, "Result values as KEY=VALUE (repeatable)")

	return cmd
}

func newExecutionFailCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "fail ID",
		Short: "Fail an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var payload map[string]any
			if reason != "" {
				payload = map[string]any{"reason": reason}
			}

			state, err := client.FailExecution(args[0], payload)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution %s: %s", args[0], state))
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Failure reason")

	return cmd
}

func newExecutionCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var detail string

	cmd := &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			state, err := client.CancelExecution(args[0], detail)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution cancelled: %s (%s)", args[0], state))
			return nil
		},
	}

	cmd.Flags().StringVar(&detail, "detail", "", "Cancellation detail")

	return cmd
}

// parseKeyValues разбирает пары KEY=VALUE.
func parseKeyValues(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	out := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid value format %q, expected KEY=VALUE", kv)
		}
		out[parts[0]] = parts[1]
	}
	return out, nil
}
