package observability

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// CloudWatchAPI is the subset of the CloudWatch client used here
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metrics pushes canvas metrics to CloudWatch. Used by the Lambda entry
// point where nothing scrapes a Prometheus endpoint.
type Metrics struct {
	namespace string
	client    CloudWatchAPI
	logger    *zap.Logger
	timeout   time.Duration
}

// NewMetrics creates a new metrics instance
func NewMetrics(namespace string, client CloudWatchAPI, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Metrics{
		namespace: namespace,
		client:    client,
		logger:    logger,
		timeout:   2 * time.Second,
	}
}

func (m *Metrics) NodesCreated(kind string, n int) {
	m.put("NodesCreated", float64(n), types.StandardUnitCount, map[string]string{"Kind": kind})
}

func (m *Metrics) Expansion(children int) {
	m.put("ExpansionChildren", float64(children), types.StandardUnitCount, nil)
}

func (m *Metrics) DuplicateEdgesDropped(n int) {
	m.put("DuplicateEdgesDropped", float64(n), types.StandardUnitCount, nil)
}

func (m *Metrics) RaceLost() {
	m.put("GenerationRacesLost", 1, types.StandardUnitCount, nil)
}

func (m *Metrics) OverlapResolved(fallback bool) {
	if fallback {
		m.put("OverlapFallbacks", 1, types.StandardUnitCount, nil)
	}
}

// Generation records latency and outcome of a generation call
func (m *Metrics) Generation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	dims := map[string]string{"Operation": operation, "Status": status}
	m.put("GenerationLatency", float64(duration.Milliseconds()), types.StandardUnitMilliseconds, dims)
	m.put("GenerationCount", 1, types.StandardUnitCount, dims)
}

func (m *Metrics) put(name string, value float64, unit types.StandardUnit, dimensions map[string]string) {
	if m.client == nil {
		return
	}

	var cwDimensions []types.Dimension
	for k, v := range dimensions {
		cwDimensions = append(cwDimensions, types.Dimension{
			Name:  aws.String(k),
			Value: aws.String(v),
		})
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(name),
				Dimensions: cwDimensions,
				Value:      aws.Float64(value),
				Unit:       unit,
				Timestamp:  aws.Time(time.Now()),
			},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	// Log error but don't fail the operation
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Warn("Failed to send metrics",
			zap.String("metric", name),
			zap.Error(err),
		)
	}
}
