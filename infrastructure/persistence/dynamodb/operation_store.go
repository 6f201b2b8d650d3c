package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"canvas-backend/application/ports"
	pkgerrors "canvas-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

const operationPrefix = "OPERATION#"

// OperationAPI is the subset of the DynamoDB client the operation store uses
type OperationAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// ddbOperationItem is one async operation; TTL lets DynamoDB expire it
type ddbOperationItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Result    string `dynamodbav:"Result"`
	StartedAt string `dynamodbav:"StartedAt"`
	TTL       int64  `dynamodbav:"TTL"`
}

// OperationStore implements ports.OperationStore on DynamoDB so operation
// status survives across Lambda invocations
type OperationStore struct {
	client    OperationAPI
	tableName string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewOperationStore creates a DynamoDB-based operation store
func NewOperationStore(client OperationAPI, tableName string, ttl time.Duration, logger *zap.Logger) *OperationStore {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperationStore{
		client:    client,
		tableName: tableName,
		ttl:       ttl,
		logger:    logger,
	}
}

// Store saves a new operation. Storing an ID twice is a conflict.
func (s *OperationStore) Store(ctx context.Context, result *ports.OperationResult) error {
	if result == nil || result.OperationID == "" {
		return pkgerrors.NewValidationError("invalid operation result")
	}
	return s.put(ctx, result, aws.String("attribute_not_exists(PK)"))
}

// Get retrieves an operation; expired items are reported as not found even
// before DynamoDB's TTL sweep removes them
func (s *OperationStore) Get(ctx context.Context, operationID string) (*ports.OperationResult, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            key(operationPrefix+operationID, metadataSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, classify("get operation", err)
	}
	if out.Item == nil {
		return nil, pkgerrors.NewNotFoundError("operation " + operationID)
	}

	var item ddbOperationItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal operation item: %w", err)
	}
	if item.TTL > 0 && time.Now().Unix() > item.TTL {
		return nil, pkgerrors.NewNotFoundError("operation " + operationID)
	}

	var result ports.OperationResult
	if err := json.Unmarshal([]byte(item.Result), &result); err != nil {
		return nil, fmt.Errorf("failed to deserialize operation result: %w", err)
	}
	return &result, nil
}

// Update replaces an existing operation
func (s *OperationStore) Update(ctx context.Context, operationID string, result *ports.OperationResult) error {
	if result == nil {
		return pkgerrors.NewValidationError("invalid operation result")
	}
	stored := *result
	stored.OperationID = operationID
	return s.put(ctx, &stored, aws.String("attribute_exists(PK)"))
}

// CleanupExpired is a no-op: the TTL attribute makes DynamoDB delete
// expired operations on its own
func (s *OperationStore) CleanupExpired(ctx context.Context, olderThan time.Duration) error {
	return nil
}

func (s *OperationStore) put(ctx context.Context, result *ports.OperationResult, condition *string) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize operation result: %w", err)
	}

	item, err := attributevalue.MarshalMap(ddbOperationItem{
		PK:        operationPrefix + result.OperationID,
		SK:        metadataSK,
		Result:    string(body),
		StartedAt: result.StartedAt.UTC().Format(time.RFC3339Nano),
		TTL:       result.StartedAt.Add(s.ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal operation item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: condition,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			s.logger.Debug("Operation write rejected by condition",
				zap.String("operationID", result.OperationID),
				zap.String("condition", aws.ToString(condition)),
			)
			return pkgerrors.NewConflictError("operation " + result.OperationID + " write conflict").WithCause(err)
		}
		return classify("put operation", err)
	}
	return nil
}
