package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/finjudge/internal/worker"
)

func newWorkerCmd(g *globals) *cobra.Command {
	var taskQueue string
	var maxActivities int
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a Temporal worker hosting the evaluation workflow and judge activities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			res, err := worker.Initialize(ctx, g.cfg)
			if err != nil {
				return err
			}
			defer res.Close()

			eval, err := worker.InitializeEvaluator(g.cfg, res)
			if err != nil {
				return err
			}
			c, err := worker.DialTemporal(g.cfg.Temporal)
			if err != nil {
				return err
			}
			defer c.Close()

			if taskQueue == "" {
				taskQueue = g.cfg.Temporal.TaskQueue
			}
			w := sdkworker.New(c, taskQueue, sdkworker.Options{
				MaxConcurrentActivityExecutionSize: maxActivities,
			})
			worker.RegisterAll(w, eval, res.Events)

			slog.Info("temporal worker starting", "task_queue", taskQueue, "namespace", g.cfg.Temporal.Namespace)
			interrupt := make(chan any)
			go func() {
				<-ctx.Done()
				close(interrupt)
			}()
			return w.Run(interrupt)
		},
	}
	cmd.Flags().StringVar(&taskQueue, "task-queue", "", "Task queue to poll (default from config)")
	cmd.Flags().IntVar(&maxActivities, "max-activities", 0, "Concurrent activity executions (0 uses the SDK default)")
	return cmd
}
