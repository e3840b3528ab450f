// finjudge evaluates financial-QA answers with three judges and a hybrid scorer.
//
// Usage:
//
//	finjudge run     --dataset=<tasks.jsonl> [--run-id=<id>] [--concurrency=<n>]
//	finjudge replay  --run-id=<id> [--task-id=<id>]
//	finjudge report  --run-id=<id> [-o <file>]
//	finjudge serve   [--addr=<addr>]
//	finjudge worker
//	finjudge mcp
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
