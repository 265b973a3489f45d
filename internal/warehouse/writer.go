package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"go.uber.org/multierr"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pkgbigquery "github.com/chainsight-ai/chainsight-backend/pkg/bigquery"
)

const (
	defaultBatchSize      = 500
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// Config controls the warehouse writer behavior.
type Config struct {
	PatternsTable    string
	KPIsTable        string
	AssignmentsTable string
	CentroidsTable   string
	BatchSize        int
	RetryPolicy      RetryPolicy
}

// RetryPolicy controls how many times warehouse inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Writer buffers analytics output rows per table and inserts them in batches
// with retries. It is not safe for concurrent use; the pipeline writes from a
// single goroutine after the compute fan-in.
type Writer struct {
	client           tableInserter
	patternsTable    string
	kpisTable        string
	assignmentsTable string
	centroidsTable   string
	batchSize        int
	retry            RetryPolicy

	patternBuffer    []PatternRow
	kpiBuffer        []KPIRow
	assignmentBuffer []ClusterAssignmentRow
	centroidBuffer   []CentroidRow
}

// New creates a Writer backed by a shared client.
func New(client *pkgbigquery.Client, cfg Config) (*Writer, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	tables := map[string]*string{
		"patterns":    &cfg.PatternsTable,
		"kpis":        &cfg.KPIsTable,
		"assignments": &cfg.AssignmentsTable,
		"centroids":   &cfg.CentroidsTable,
	}
	for name, value := range tables {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			return nil, fmt.Errorf("%s table is required", name)
		}
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	retry := cfg.RetryPolicy
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff <= 0 {
		retry.MaximumBackoff = defaultMaximumBackoff
	}
	if retry.MaximumBackoff < retry.InitialBackoff {
		retry.MaximumBackoff = retry.InitialBackoff
	}

	return &Writer{
		client:           client,
		patternsTable:    cfg.PatternsTable,
		kpisTable:        cfg.KPIsTable,
		assignmentsTable: cfg.AssignmentsTable,
		centroidsTable:   cfg.CentroidsTable,
		batchSize:        batchSize,
		retry:            retry,
	}, nil
}

// InsertPattern buffers one pattern row (flushes when batch size is reached).
func (w *Writer) InsertPattern(ctx context.Context, row PatternRow) error {
	w.patternBuffer = append(w.patternBuffer, row)
	if len(w.patternBuffer) >= w.batchSize {
		return w.flushPatterns(ctx)
	}
	return nil
}

// InsertKPI buffers one KPI row (flushes when batch size is reached).
func (w *Writer) InsertKPI(ctx context.Context, row KPIRow) error {
	w.kpiBuffer = append(w.kpiBuffer, row)
	if len(w.kpiBuffer) >= w.batchSize {
		return w.flushKPIs(ctx)
	}
	return nil
}

// InsertAssignment buffers one cluster assignment row.
func (w *Writer) InsertAssignment(ctx context.Context, row ClusterAssignmentRow) error {
	w.assignmentBuffer = append(w.assignmentBuffer, row)
	if len(w.assignmentBuffer) >= w.batchSize {
		return w.flushAssignments(ctx)
	}
	return nil
}

// InsertCentroid buffers one centroid row.
func (w *Writer) InsertCentroid(ctx context.Context, row CentroidRow) error {
	w.centroidBuffer = append(w.centroidBuffer, row)
	if len(w.centroidBuffer) >= w.batchSize {
		return w.flushCentroids(ctx)
	}
	return nil
}

// Flush writes all buffered rows immediately. Every table is attempted even
// when an earlier one fails; errors are combined.
func (w *Writer) Flush(ctx context.Context) error {
	return multierr.Combine(
		w.flushPatterns(ctx),
		w.flushKPIs(ctx),
		w.flushAssignments(ctx),
		w.flushCentroids(ctx),
	)
}

func (w *Writer) flushPatterns(ctx context.Context) error {
	if len(w.patternBuffer) == 0 {
		return nil
	}
	rows := make([]any, len(w.patternBuffer))
	for i := range w.patternBuffer {
		rows[i] = &w.patternBuffer[i]
	}
	if err := w.insertWithRetry(ctx, w.patternsTable, rows); err != nil {
		return err
	}
	w.patternBuffer = w.patternBuffer[:0]
	return nil
}

func (w *Writer) flushKPIs(ctx context.Context) error {
	if len(w.kpiBuffer) == 0 {
		return nil
	}
	rows := make([]any, len(w.kpiBuffer))
	for i := range w.kpiBuffer {
		rows[i] = &w.kpiBuffer[i]
	}
	if err := w.insertWithRetry(ctx, w.kpisTable, rows); err != nil {
		return err
	}
	w.kpiBuffer = w.kpiBuffer[:0]
	return nil
}

func (w *Writer) flushAssignments(ctx context.Context) error {
	if len(w.assignmentBuffer) == 0 {
		return nil
	}
	rows := make([]any, len(w.assignmentBuffer))
	for i := range w.assignmentBuffer {
		rows[i] = &w.assignmentBuffer[i]
	}
	if err := w.insertWithRetry(ctx, w.assignmentsTable, rows); err != nil {
		return err
	}
	w.assignmentBuffer = w.assignmentBuffer[:0]
	return nil
}

func (w *Writer) flushCentroids(ctx context.Context) error {
	if len(w.centroidBuffer) == 0 {
		return nil
	}
	rows := make([]any, len(w.centroidBuffer))
	for i := range w.centroidBuffer {
		rows[i] = &w.centroidBuffer[i]
	}
	if err := w.insertWithRetry(ctx, w.centroidsTable, rows); err != nil {
		return err
	}
	w.centroidBuffer = w.centroidBuffer[:0]
	return nil
}

func (w *Writer) insertWithRetry(ctx context.Context, table string, rows []any) error {
	if len(rows) == 0 {
		return nil
	}

	attempts := 0
	backoff := w.retry.InitialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := w.client.InsertRows(ctx, table, rows)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= w.retry.MaxAttempts || !isRetryable(err) {
			return fmt.Errorf("insert %s rows: %w", table, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		timer.Stop()

		backoff = minDuration(backoff*2, w.retry.MaximumBackoff)
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var multi *cbigquery.MultiError
	if errors.As(err, &multi) {
		if multi == nil || len(*multi) == 0 {
			return false
		}
		for _, inner := range *multi {
			if !isRetryable(inner) {
				return false
			}
		}
		return true
	}

	var pme *cbigquery.PutMultiError
	if errors.As(err, &pme) {
		if pme == nil || len(*pme) == 0 {
			return false
		}
		for _, rowErr := range *pme {
			if !isRetryable(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var rowErr *cbigquery.RowInsertionError
	if errors.As(err, &rowErr) {
		if rowErr == nil || len(rowErr.Errors) == 0 {
			return false
		}
		for _, inner := range rowErr.Errors {
			if !isRetryable(inner) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableHTTPCode(apiErr.Code)
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		if st := statusErr.GRPCStatus(); st != nil {
			return isRetryableGRPCCode(st.Code())
		}
	}

	return false
}

func isRetryableHTTPCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Aborted,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.ResourceExhausted,
		codes.Unavailable:
		return true
	default:
		return false
	}
}
