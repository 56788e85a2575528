package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"lean-assistant/internal/ai"
	"lean-assistant/internal/app"
	"lean-assistant/internal/model"
	"lean-assistant/internal/platform/rabbitmq"
	"lean-assistant/internal/source"
	"lean-assistant/internal/vectorstore"
)

// Ingester is the part of the assistant the worker drives.
type Ingester interface {
	Ingest(ctx context.Context, docs []app.DocumentSource) (*model.IngestReport, error)
}

// IngestWorker consumes IngestJob messages one at a time.
type IngestWorker struct {
	conn      *amqp.Connection
	ingester  Ingester
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, ingester Ingester, queueName string) *IngestWorker {
	return &IngestWorker{
		conn:      conn,
		ingester:  ingester,
		queueName: queueName,
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	// Ingestion is not meant to run concurrently with itself.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.Handle(workerCtx, d.Body); err != nil {
					requeue := retryable(workerCtx, err)
					log.Printf("worker ingest job failed (requeue=%t): %v", requeue, err)
					_ = d.Nack(false, requeue)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

// Handle decodes and ingests one job. It fails when the job's document could
// not be indexed at all.
func (w *IngestWorker) Handle(ctx context.Context, body []byte) error {
	var job model.IngestJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("decode ingest job: %w", err)
	}
	if strings.TrimSpace(job.Name) == "" {
		return fmt.Errorf("ingest job has no name")
	}

	report, err := w.ingester.Ingest(ctx, []app.DocumentSource{source.Text{Name: job.Name, Content: job.Content}})
	if err != nil {
		return err
	}
	if len(report.Failures) > 0 && report.TotalChunks() == 0 {
		f := report.Failures[0]
		cause := f.Cause
		if cause == nil {
			cause = errors.New(f.Error)
		}
		return fmt.Errorf("ingest %s: %w", f.Document, cause)
	}
	log.Printf("worker ingested %s: %d chunks", job.Name, report.TotalChunks())
	return nil
}

// retryable reports whether a failed job goes back on the queue: the worker is
// stopping, or the embedder or index could not be reached.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return errors.Is(err, ai.ErrEmbedding) || errors.Is(err, vectorstore.ErrIndexUnavailable)
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
