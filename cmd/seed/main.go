// seed inserts a handful of immediate, delayed, and recurring example
// jobs into the local dev database through the public Enqueue API (C4),
// exercising the bundled HTTPRequest handler (internal/jobs).
// Run: go run ./cmd/seed
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ridgeback/jobqueue/internal/infrastructure/postgres"
	"github.com/ridgeback/jobqueue/internal/jobs"
	"github.com/ridgeback/jobqueue/internal/usecase"
)

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	queue := usecase.NewQueueUsecase(postgres.NewJobRepository(pool))

	var created []int64

	// Immediate jobs, a mix of happy path and ones that will fail until
	// retries are exhausted.
	immediate := []jobs.HTTPRequestArgs{
		{Method: "GET", URL: "https://httpbin.org/get"},
		{Method: "POST", URL: "https://httpbin.org/post", Body: `{"hello":"world"}`},
		{Method: "GET", URL: "https://httpbin.org/status/500"},
	}
	for _, args := range immediate {
		id := enqueueHTTP(ctx, queue, args, usecase.EnqueueOptions{MaxAttempts: 3})
		created = append(created, id)
	}

	// A one-shot delayed job, firing about a minute from now.
	delayedAt := time.Now().Add(time.Minute)
	created = append(created, enqueueHTTP(ctx, queue,
		jobs.HTTPRequestArgs{Method: "GET", URL: "https://httpbin.org/get"},
		usecase.EnqueueOptions{ScheduledFor: &delayedAt},
	))

	// A recurring job firing every minute.
	created = append(created, enqueueHTTP(ctx, queue,
		jobs.HTTPRequestArgs{Method: "GET", URL: "https://httpbin.org/get"},
		usecase.EnqueueOptions{CronExpression: "*/1 * * * *"},
	))

	fmt.Println("Seed complete")
	fmt.Printf("  Jobs created: %d\n", len(created))
	for _, id := range created {
		fmt.Printf("    job %d\n", id)
	}
	fmt.Println()
	fmt.Println("Start a worker to see them claimed and dispatched:")
	fmt.Println("  go run ./cmd/scheduler")
}

func enqueueHTTP(ctx context.Context, queue *usecase.QueueUsecase, args jobs.HTTPRequestArgs, opts usecase.EnqueueOptions) int64 {
	raw, err := json.Marshal(args)
	if err != nil {
		log.Fatalf("marshal args: %v", err)
	}
	job, err := queue.Enqueue(ctx, jobs.HTTPRequestClass, raw, opts)
	if err != nil {
		log.Fatalf("enqueue %s %s: %v", args.Method, args.URL, err)
	}
	return job.ID
}
