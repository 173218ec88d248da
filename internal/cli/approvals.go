package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbakke/signoff/internal/db"
	"github.com/mbakke/signoff/internal/models"
	"github.com/mbakke/signoff/internal/workflow"
)

var (
	createTitle       string
	createDescription string
	createType        string
	createMode        string
	createApprovers   []string
	createProjectID   string
	createPriority    string

	decisionComment string

	listStatus    string
	listProjectID string
	listRequester string
)

func init() {
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(reviseCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pendingCmd)

	createCmd.Flags().StringVar(&createTitle, "title", "", "request title")
	createCmd.Flags().StringVar(&createDescription, "description", "", "request description")
	createCmd.Flags().StringVar(&createType, "type", "decision", "approval type (document, decision, budget, other)")
	createCmd.Flags().StringVar(&createMode, "mode", "sequential", "workflow mode (sequential, parallel)")
	createCmd.Flags().StringSliceVar(&createApprovers, "approvers", nil, "ordered approver user ids")
	createCmd.Flags().StringVar(&createProjectID, "project", "", "linked project id")
	createCmd.Flags().StringVar(&createPriority, "priority", "", "priority (low, medium, high, urgent)")
	_ = createCmd.MarkFlagRequired("title")
	_ = createCmd.MarkFlagRequired("approvers")

	for _, cmd := range []*cobra.Command{approveCmd, rejectCmd, reviseCmd} {
		cmd.Flags().StringVar(&decisionComment, "comment", "", "decision comment")
	}

	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	listCmd.Flags().StringVar(&listProjectID, "project", "", "filter by project id")
	listCmd.Flags().StringVar(&listRequester, "requester", "", "filter by requester id")
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an approval request",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		actor, err := requireActor()
		if err != nil {
			return err
		}

		engine, database, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		request, err := engine.Create(ctx, actor, workflow.CreateParams{
			Title:       createTitle,
			Description: createDescription,
			ProjectID:   createProjectID,
			Type:        models.ApprovalType(createType),
			Mode:        models.WorkflowMode(createMode),
			ApproverIDs: createApprovers,
			Priority:    models.Priority(createPriority),
		})
		if err != nil {
			return fmt.Errorf("failed to create approval: %w", err)
		}

		fmt.Println(request.ID)
		return nil
	},
}

func decisionCommand(use, short string, op func(engine *workflow.Engine, ctx context.Context, actor, id, comment string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <request id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			actor, err := requireActor()
			if err != nil {
				return err
			}

			engine, database, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := op(engine, ctx, actor, args[0], decisionComment); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}

var approveCmd = decisionCommand("approve", "Approve a request", func(engine *workflow.Engine, ctx context.Context, actor, id, comment string) error {
	return engine.Approve(ctx, actor, id, comment)
})

var rejectCmd = decisionCommand("reject", "Reject a request", func(engine *workflow.Engine, ctx context.Context, actor, id, comment string) error {
	return engine.Reject(ctx, actor, id, comment)
})

var reviseCmd = decisionCommand("revise", "Request revision on a request", func(engine *workflow.Engine, ctx context.Context, actor, id, comment string) error {
	return engine.RequestRevision(ctx, actor, id, comment)
})

var cancelCmd = &cobra.Command{
	Use:   "cancel <request id>",
	Short: "Cancel a pending request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		actor, err := requireActor()
		if err != nil {
			return err
		}

		engine, database, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := engine.Cancel(ctx, actor, args[0]); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

var commentCmd = &cobra.Command{
	Use:   "comment <request id> <text>",
	Short: "Add a comment to a request",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		actor, err := requireActor()
		if err != nil {
			return err
		}

		engine, database, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		comment, err := engine.AddComment(ctx, actor, args[0], args[1], nil)
		if err != nil {
			return err
		}
		fmt.Println(comment.ID)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <request id>",
	Short: "Show a request and its steps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		engine, database, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		request, err := engine.Get(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s  %s\n", request.ID, request.Title)
		fmt.Printf("status: %s  mode: %s  type: %s\n", request.Status, request.Mode, request.Type)
		if request.Mode == models.WorkflowSequential {
			fmt.Printf("current step: %d\n", request.CurrentStepIndex)
		}

		rows := make([][]string, 0, len(request.Steps))
		for _, step := range request.Steps {
			decided := ""
			if step.DecidedAt != nil {
				decided = step.DecidedAt.Format(time.RFC3339)
			}
			rows = append(rows, []string{
				strconv.Itoa(step.StepNumber), step.ApproverID, string(step.Status), decided, step.Comment,
			})
		}
		return writeTable(os.Stdout, []string{"STEP", "APPROVER", "STATUS", "DECIDED", "COMMENT"}, rows)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List approval requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		engine, database, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		query := db.ApprovalQuery{}
		if strings.TrimSpace(listStatus) != "" {
			status := models.ApprovalStatus(listStatus)
			query.Status = &status
		}
		if strings.TrimSpace(listProjectID) != "" {
			query.ProjectID = &listProjectID
		}
		if strings.TrimSpace(listRequester) != "" {
			query.RequesterID = &listRequester
		}

		requests, err := engine.List(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to list approvals: %w", err)
		}

		return printRequests(requests)
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List requests waiting on you",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		actor, err := requireActor()
		if err != nil {
			return err
		}

		engine, database, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		requests, err := engine.ListPendingForUser(ctx, actor)
		if err != nil {
			return fmt.Errorf("failed to list pending approvals: %w", err)
		}

		return printRequests(requests)
	},
}

func printRequests(requests []*models.ApprovalRequest) error {
	rows := make([][]string, 0, len(requests))
	for _, request := range requests {
		rows = append(rows, []string{
			request.ID, request.Title, string(request.Status), string(request.Mode),
			request.RequesterID, request.CreatedAt.Format(time.RFC3339),
		})
	}
	return writeTable(os.Stdout, []string{"ID", "TITLE", "STATUS", "MODE", "REQUESTER", "CREATED"}, rows)
}
