package observability

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// maxDatumsPerRequest is the PutMetricData limit.
const maxDatumsPerRequest = 1000

// MetricsPutter is the subset of the CloudWatch client the observer needs.
type MetricsPutter interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchObserver buffers events as metric datums and sends them on Flush.
// Events are never sent on the caller's path.
type CloudWatchObserver struct {
	namespace string
	client    MetricsPutter
	logger    *zap.Logger

	mu     sync.Mutex
	buffer []types.MetricDatum
}

// NewCloudWatchObserver creates a CloudWatchObserver.
func NewCloudWatchObserver(namespace string, client MetricsPutter, logger *zap.Logger) *CloudWatchObserver {
	return &CloudWatchObserver{
		namespace: namespace,
		client:    client,
		logger:    logger,
	}
}

func (o *CloudWatchObserver) Timing(_ context.Context, operation string, d time.Duration, err error) {
	now := time.Now()
	dimensions := []types.Dimension{
		{Name: aws.String("Operation"), Value: aws.String(operation)},
		{Name: aws.String("Status"), Value: aws.String(Status(err))},
	}
	o.add(
		types.MetricDatum{
			MetricName: aws.String("OperationLatency"),
			Dimensions: dimensions,
			Value:      aws.Float64(float64(d.Milliseconds())),
			Unit:       types.StandardUnitMilliseconds,
			Timestamp:  aws.Time(now),
		},
		types.MetricDatum{
			MetricName: aws.String("OperationCount"),
			Dimensions: dimensions,
			Value:      aws.Float64(1),
			Unit:       types.StandardUnitCount,
			Timestamp:  aws.Time(now),
		},
	)
}

func (o *CloudWatchObserver) Warning(_ context.Context, event string, _ ...zap.Field) {
	o.add(types.MetricDatum{
		MetricName: aws.String("Warnings"),
		Dimensions: []types.Dimension{
			{Name: aws.String("Event"), Value: aws.String(event)},
		},
		Value:     aws.Float64(1),
		Unit:      types.StandardUnitCount,
		Timestamp: aws.Time(time.Now()),
	})
}

func (o *CloudWatchObserver) add(datums ...types.MetricDatum) {
	o.mu.Lock()
	o.buffer = append(o.buffer, datums...)
	o.mu.Unlock()
}

// Pending returns the number of buffered datums.
func (o *CloudWatchObserver) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.buffer)
}

// Flush sends buffered datums in requests of at most 1000. Datums from a
// failed request are dropped.
func (o *CloudWatchObserver) Flush(ctx context.Context) error {
	o.mu.Lock()
	pending := o.buffer
	o.buffer = nil
	o.mu.Unlock()

	var firstErr error
	for start := 0; start < len(pending); start += maxDatumsPerRequest {
		end := min(start+maxDatumsPerRequest, len(pending))
		_, err := o.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(o.namespace),
			MetricData: pending[start:end],
		})
		if err != nil {
			o.logger.Warn("Failed to send metrics", zap.Int("datums", end-start), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Run flushes on every tick until ctx is done, then flushes once more.
func (o *CloudWatchObserver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = o.Flush(context.Background())
			return
		case <-ticker.C:
			_ = o.Flush(ctx)
		}
	}
}
