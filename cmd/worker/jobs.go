package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"frame-worker/internal/domain/model"
	"frame-worker/internal/domain/ports/adapter"
	pg "frame-worker/internal/infra/db/postgres"
	"frame-worker/internal/infra/rabbitmq"
	"frame-worker/internal/usecase"
)

func migrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			v, err := pg.Migrate(cfg.Database.URL)
			if err != nil {
				return err
			}
			logger.Info().Uint("version", v).Msg("migrations applied")
			return nil
		},
	}
}

func enqueueCmd(flags *rootFlags) *cobra.Command {
	var id, owner, input string
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Create a job and publish it to the job queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withJobAdmin(cmd.Context(), flags, true, func(ctx context.Context, uc usecase.JobAdminUseCase) error {
				job, err := uc.Submit(ctx, id, owner, input)
				if err != nil {
					return err
				}
				return printJSON(jobView(job, nil))
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "job id (generated when empty)")
	cmd.Flags().StringVar(&owner, "owner", "", "owner id")
	cmd.Flags().StringVar(&input, "input", "", "object key of the uploaded video")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func cancelCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job that has not started processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobAdmin(cmd.Context(), flags, false, func(ctx context.Context, uc usecase.JobAdminUseCase) error {
				job, err := uc.Cancel(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(jobView(job, nil))
			})
		},
	}
}

func statusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Print a job and its event history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobAdmin(cmd.Context(), flags, false, func(ctx context.Context, uc usecase.JobAdminUseCase) error {
				job, events, err := uc.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(jobView(job, events))
			})
		},
	}
}

// withJobAdmin opens the connections a one-shot command needs. The broker is
// only dialed when the command publishes.
func withJobAdmin(ctx context.Context, flags *rootFlags, publish bool, fn func(context.Context, usecase.JobAdminUseCase) error) error {
	cfg, logger, err := flags.load()
	if err != nil {
		return err
	}
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	var pub adapter.JobPublisher
	if publish {
		conn, err := rabbitmq.Dial(cfg.AMQP.URL)
		if err != nil {
			return fmt.Errorf("rabbitmq: %w", err)
		}
		defer conn.Close()
		publisher, err := rabbitmq.NewPublisher(conn)
		if err != nil {
			return fmt.Errorf("rabbitmq publisher: %w", err)
		}
		defer publisher.Close()
		pub = publisher
	}

	jobRepo := pg.NewJobRepo(pool)
	sm := usecase.NewJobStateMachine(jobRepo, pg.NewTxManager(pool), logger)
	return fn(ctx, usecase.NewJobAdminUseCase(jobRepo, sm, pub, logger))
}

type eventOut struct {
	Type      string         `json:"type"`
	OldStatus string         `json:"old_status,omitempty"`
	NewStatus string         `json:"new_status,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	At        string         `json:"at"`
}

type jobOut struct {
	*model.Job
	Events []eventOut `json:"events,omitempty"`
}

func jobView(job *model.Job, events []*model.JobEvent) jobOut {
	out := jobOut{Job: job}
	for _, ev := range events {
		e := eventOut{Type: ev.EventType, Payload: ev.Payload, At: ev.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00")}
		if ev.OldStatus != nil {
			e.OldStatus = string(*ev.OldStatus)
		}
		if ev.NewStatus != nil {
			e.NewStatus = string(*ev.NewStatus)
		}
		out.Events = append(out.Events, e)
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
