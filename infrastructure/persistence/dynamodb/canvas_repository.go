// Package dynamodb stores canvases in a single DynamoDB table.
//
// Key layout, all items of one canvas share a partition:
//
//	PK=CANVAS#<id>  SK=METADATA                          canvas title, epoch, revision, timestamps
//	PK=CANVAS#<id>  SK=NODE#<nodeID>                     one node, payload as JSON
//	PK=CANVAS#<id>  SK=EDGE#<edgeID>                     one edge
//	PK=CANVAS#<id>  SK=ARTIFACT#<artifactID>             one synthesis artifact
//	PK=CANVAS#<id>  SK=RESOURCE#<nodeID>#<kind>#<index>  one node sub-resource
//
// Metadata items also carry GSI1PK=CANVASES, GSI1SK=<updatedAt> so canvases
// can be listed newest first.
//
// Every save moves the metadata Revision forward with a conditional put
// before any node or edge item is written, so of two writers that loaded the
// same revision only one can save.
package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"canvas-backend/application/ports"
	"canvas-backend/domain/core/entities"
	pkgerrors "canvas-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	canvasPrefix   = "CANVAS#"
	nodePrefix     = "NODE#"
	edgePrefix     = "EDGE#"
	artifactPrefix = "ARTIFACT#"
	resourcePrefix = "RESOURCE#"
	metadataSK     = "METADATA"
	listPartition  = "CANVASES"

	entityCanvas   = "CANVAS"
	entityNode     = "NODE"
	entityEdge     = "EDGE"
	entityArtifact = "ARTIFACT"
	entityResource = "RESOURCE"

	// DynamoDB limits batch writes to 25 items
	batchWriteSize = 25
	maxRetries     = 3
)

// API is the subset of the DynamoDB client the repository uses
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

type ddbCanvas struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	CanvasID   string `dynamodbav:"CanvasID"`
	Title      string `dynamodbav:"Title"`
	Epoch      uint64 `dynamodbav:"Epoch"`
	Revision   uint64 `dynamodbav:"Revision"`
	NodeCount  int    `dynamodbav:"NodeCount"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
	GSI1PK     string `dynamodbav:"GSI1PK"`
	GSI1SK     string `dynamodbav:"GSI1SK"`
}

type ddbNode struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	NodeID     string `dynamodbav:"NodeID"`
	Kind       string `dynamodbav:"Kind"`
	State      string `dynamodbav:"State"`
	Order      int    `dynamodbav:"Order"`
	Body       string `dynamodbav:"Body"`
}

type ddbEdge struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	EdgeID     string `dynamodbav:"EdgeID"`
	SourceID   string `dynamodbav:"SourceID"`
	TargetID   string `dynamodbav:"TargetID"`
	EdgeType   string `dynamodbav:"EdgeType"`
	Order      int    `dynamodbav:"Order"`
}

type ddbArtifact struct {
	PK            string   `dynamodbav:"PK"`
	SK            string   `dynamodbav:"SK"`
	EntityType    string   `dynamodbav:"EntityType"`
	ArtifactID    string   `dynamodbav:"ArtifactID"`
	Title         string   `dynamodbav:"Title"`
	Content       string   `dynamodbav:"Content"`
	SourceNodeIDs []string `dynamodbav:"SourceNodeIDs"`
	Placeholder   bool     `dynamodbav:"Placeholder"`
	CreatedAt     string   `dynamodbav:"CreatedAt"`
}

type ddbResource struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	NodeID     string `dynamodbav:"NodeID"`
	Kind       string `dynamodbav:"Kind"`
	Index      int    `dynamodbav:"Index"`
	Value      string `dynamodbav:"Value"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
}

// CanvasRepository implements ports.CanvasRepository on DynamoDB
type CanvasRepository struct {
	client    API
	tableName string
	indexName string
	logger    *zap.Logger
}

// NewCanvasRepository creates a repository. indexName names the GSI used to
// list canvases; when empty, listing falls back to a scan.
func NewCanvasRepository(client API, tableName, indexName string, logger *zap.Logger) *CanvasRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CanvasRepository{
		client:    client,
		tableName: tableName,
		indexName: indexName,
		logger:    logger,
	}
}

// SaveCanvas replaces the stored canvas with record. The metadata item is
// claimed first under a revision condition; nodes and edges are written after
// it, and items no longer part of the canvas are deleted.
func (r *CanvasRepository) SaveCanvas(ctx context.Context, record ports.CanvasRecord) error {
	if record.ID == "" {
		return pkgerrors.NewValidationError("canvas ID cannot be empty")
	}
	pk := canvasPrefix + record.ID

	existing, err := r.queryPartition(ctx, pk, "")
	if err != nil {
		return pkgerrors.NewDatabaseError("load canvas keys", err)
	}

	keep := make(map[string]struct{}, len(record.Nodes)+len(record.Edges))
	var writes []types.WriteRequest
	for i, n := range record.Nodes {
		body, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("failed to encode node %s: %w", n.ID, err)
		}
		item, err := attributevalue.MarshalMap(ddbNode{
			PK:         pk,
			SK:         nodePrefix + n.ID,
			EntityType: entityNode,
			NodeID:     n.ID,
			Kind:       string(n.Kind()),
			State:      string(n.State),
			Order:      i,
			Body:       string(body),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal node %s: %w", n.ID, err)
		}
		keep[nodePrefix+n.ID] = struct{}{}
		writes = append(writes, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	for i, e := range record.Edges {
		item, err := attributevalue.MarshalMap(ddbEdge{
			PK:         pk,
			SK:         edgePrefix + e.ID,
			EntityType: entityEdge,
			EdgeID:     e.ID,
			SourceID:   e.Source,
			TargetID:   e.Target,
			EdgeType:   string(e.Type),
			Order:      i,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal edge %s: %w", e.ID, err)
		}
		keep[edgePrefix+e.ID] = struct{}{}
		writes = append(writes, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}

	// stale nodes and edges; artifacts and resources survive a save
	var previous map[string]types.AttributeValue
	for _, item := range existing {
		sk := stringAttr(item, "SK")
		if sk == metadataSK {
			previous = item
			continue
		}
		if !strings.HasPrefix(sk, nodePrefix) && !strings.HasPrefix(sk, edgePrefix) {
			continue
		}
		if _, ok := keep[sk]; ok {
			continue
		}
		writes = append(writes, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key(pk, sk)}})
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() && previous != nil {
		createdAt, _ = time.Parse(time.RFC3339Nano, stringAttr(previous, "CreatedAt"))
	}
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	meta, err := attributevalue.MarshalMap(ddbCanvas{
		PK:         pk,
		SK:         metadataSK,
		EntityType: entityCanvas,
		CanvasID:   record.ID,
		Title:      record.Title,
		Epoch:      record.Epoch,
		Revision:   record.Revision + 1,
		NodeCount:  len(record.Nodes),
		CreatedAt:  createdAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  updatedAt.UTC().Format(time.RFC3339Nano),
		GSI1PK:     listPartition,
		GSI1SK:     updatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal canvas metadata: %w", err)
	}
	if err := r.putRevision(ctx, record.ID, meta, record.Revision); err != nil {
		return err
	}

	if err := r.batchWrite(ctx, writes); err != nil {
		r.releaseRevision(ctx, record.ID, previous, record.Revision+1)
		return pkgerrors.NewDatabaseError("save canvas", err)
	}

	r.logger.Debug("Canvas saved",
		zap.String("canvasID", record.ID),
		zap.Int("nodes", len(record.Nodes)),
		zap.Int("edges", len(record.Edges)),
		zap.Int("writes", len(writes)),
		zap.Uint64("revision", record.Revision+1),
	)
	return nil
}

// putRevision writes item only while the stored revision is still expected.
// Revision zero means the canvas must not have been saved with a revision.
func (r *CanvasRepository) putRevision(ctx context.Context, canvasID string, item map[string]types.AttributeValue, expected uint64) error {
	cond := expression.Name("Revision").Equal(expression.Value(expected))
	if expected == 0 {
		cond = expression.AttributeNotExists(expression.Name("Revision"))
	}
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build revision condition: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			r.logger.Info("Canvas save rejected, revision moved on",
				zap.String("canvasID", canvasID),
				zap.Uint64("expected", expected),
			)
			return pkgerrors.NewConflictError(fmt.Sprintf(
				"canvas %s was saved by another writer since revision %d", canvasID, expected)).WithCause(err)
		}
		return classify("save canvas metadata", err)
	}
	return nil
}

// releaseRevision puts the previous metadata back after a failed save so the
// writer that claimed the revision can retry. Without previous metadata the
// claimed item is removed.
func (r *CanvasRepository) releaseRevision(ctx context.Context, canvasID string, previous map[string]types.AttributeValue, claimed uint64) {
	var err error
	if previous != nil {
		err = r.putRevision(ctx, canvasID, previous, claimed)
	} else {
		err = r.batchWrite(ctx, []types.WriteRequest{
			{DeleteRequest: &types.DeleteRequest{Key: key(canvasPrefix+canvasID, metadataSK)}},
		})
	}
	if err != nil {
		r.logger.Error("Failed to release canvas revision after a failed save",
			zap.String("canvasID", canvasID),
			zap.Uint64("revision", claimed),
			zap.Error(err),
		)
	}
}

// LoadCanvas reads every node and edge of a canvas in their saved order
func (r *CanvasRepository) LoadCanvas(ctx context.Context, canvasID string) (ports.CanvasRecord, error) {
	items, err := r.queryPartition(ctx, canvasPrefix+canvasID, "")
	if err != nil {
		return ports.CanvasRecord{}, classify("load canvas", err)
	}

	var (
		record ports.CanvasRecord
		found  bool
		nodes  []ddbNode
		edges  []ddbEdge
	)
	for _, item := range items {
		sk := stringAttr(item, "SK")
		switch {
		case sk == metadataSK:
			var meta ddbCanvas
			if err := attributevalue.UnmarshalMap(item, &meta); err != nil {
				return ports.CanvasRecord{}, fmt.Errorf("failed to unmarshal canvas metadata: %w", err)
			}
			found = true
			record.ID = meta.CanvasID
			record.Title = meta.Title
			record.Epoch = meta.Epoch
			record.Revision = meta.Revision
			record.CreatedAt, _ = time.Parse(time.RFC3339Nano, meta.CreatedAt)
			record.UpdatedAt, _ = time.Parse(time.RFC3339Nano, meta.UpdatedAt)
		case strings.HasPrefix(sk, nodePrefix):
			var n ddbNode
			if err := attributevalue.UnmarshalMap(item, &n); err != nil {
				return ports.CanvasRecord{}, fmt.Errorf("failed to unmarshal node item: %w", err)
			}
			nodes = append(nodes, n)
		case strings.HasPrefix(sk, edgePrefix):
			var e ddbEdge
			if err := attributevalue.UnmarshalMap(item, &e); err != nil {
				return ports.CanvasRecord{}, fmt.Errorf("failed to unmarshal edge item: %w", err)
			}
			edges = append(edges, e)
		}
	}
	if !found {
		return ports.CanvasRecord{}, pkgerrors.NewNotFoundError("canvas " + canvasID)
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Order < nodes[j].Order })
	sort.Slice(edges, func(i, j int) bool { return edges[i].Order < edges[j].Order })

	record.Nodes = make([]entities.Node, 0, len(nodes))
	for _, item := range nodes {
		var n entities.Node
		if err := json.Unmarshal([]byte(item.Body), &n); err != nil {
			return ports.CanvasRecord{}, fmt.Errorf("failed to decode node %s: %w", item.NodeID, err)
		}
		record.Nodes = append(record.Nodes, n)
	}
	record.Edges = make([]entities.Edge, 0, len(edges))
	for _, item := range edges {
		record.Edges = append(record.Edges, entities.Edge{
			ID:     item.EdgeID,
			Source: item.SourceID,
			Target: item.TargetID,
			Type:   entities.EdgeType(item.EdgeType),
		})
	}

	r.logger.Debug("Canvas loaded",
		zap.String("canvasID", canvasID),
		zap.Int("nodes", len(record.Nodes)),
		zap.Int("edges", len(record.Edges)),
	)
	return record, nil
}

// DeleteCanvas removes every item in the canvas partition
func (r *CanvasRepository) DeleteCanvas(ctx context.Context, canvasID string) error {
	pk := canvasPrefix + canvasID
	items, err := r.queryPartition(ctx, pk, "")
	if err != nil {
		return classify("delete canvas", err)
	}

	writes := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		writes = append(writes, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: key(pk, stringAttr(item, "SK"))},
		})
	}
	if err := r.batchWrite(ctx, writes); err != nil {
		return pkgerrors.NewDatabaseError("delete canvas", err)
	}

	r.logger.Info("Canvas deleted", zap.String("canvasID", canvasID), zap.Int("items", len(items)))
	return nil
}

// ListCanvases returns canvas summaries, newest first
func (r *CanvasRepository) ListCanvases(ctx context.Context) ([]ports.CanvasSummary, error) {
	var items []map[string]types.AttributeValue

	if r.indexName != "" {
		keyCond := expression.Key("GSI1PK").Equal(expression.Value(listPartition))
		expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build expression: %w", err)
		}
		paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			IndexName:                 aws.String(r.indexName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ScanIndexForward:          aws.Bool(false),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, classify("list canvases", err)
			}
			items = append(items, page.Items...)
		}
	} else {
		filter := expression.Name("EntityType").Equal(expression.Value(entityCanvas))
		expr, err := expression.NewBuilder().WithFilter(filter).Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build expression: %w", err)
		}
		paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
			TableName:                 aws.String(r.tableName),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, classify("list canvases", err)
			}
			items = append(items, page.Items...)
		}
	}

	out := make([]ports.CanvasSummary, 0, len(items))
	for _, item := range items {
		var meta ddbCanvas
		if err := attributevalue.UnmarshalMap(item, &meta); err != nil {
			r.logger.Warn("Skipping unreadable canvas item", zap.Error(err))
			continue
		}
		updatedAt, _ := time.Parse(time.RFC3339Nano, meta.UpdatedAt)
		out = append(out, ports.CanvasSummary{
			ID:        meta.CanvasID,
			Title:     meta.Title,
			NodeCount: meta.NodeCount,
			UpdatedAt: updatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *CanvasRepository) SaveArtifact(ctx context.Context, artifact ports.Artifact) error {
	if artifact.ID == "" || artifact.CanvasID == "" {
		return pkgerrors.NewValidationError("artifact ID and canvas ID are required")
	}

	item, err := attributevalue.MarshalMap(ddbArtifact{
		PK:            canvasPrefix + artifact.CanvasID,
		SK:            artifactPrefix + artifact.ID,
		EntityType:    entityArtifact,
		ArtifactID:    artifact.ID,
		Title:         artifact.Title,
		Content:       artifact.Content,
		SourceNodeIDs: artifact.SourceNodeIDs,
		Placeholder:   artifact.Placeholder,
		CreatedAt:     artifact.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	}); err != nil {
		return classify("save artifact", err)
	}
	return nil
}

func (r *CanvasRepository) ListArtifacts(ctx context.Context, canvasID string) ([]ports.Artifact, error) {
	items, err := r.queryPartition(ctx, canvasPrefix+canvasID, artifactPrefix)
	if err != nil {
		return nil, classify("list artifacts", err)
	}

	out := make([]ports.Artifact, 0, len(items))
	for _, item := range items {
		var a ddbArtifact
		if err := attributevalue.UnmarshalMap(item, &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal artifact: %w", err)
		}
		createdAt, _ := time.Parse(time.RFC3339Nano, a.CreatedAt)
		out = append(out, ports.Artifact{
			ID:            a.ArtifactID,
			CanvasID:      canvasID,
			Title:         a.Title,
			Content:       a.Content,
			SourceNodeIDs: a.SourceNodeIDs,
			Placeholder:   a.Placeholder,
			CreatedAt:     createdAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *CanvasRepository) PutNodeResource(ctx context.Context, resource ports.NodeResource) error {
	if !resource.Kind.IsValid() {
		return pkgerrors.NewValidationError("unknown resource kind " + string(resource.Kind))
	}
	if resource.Index < 0 {
		return pkgerrors.NewValidationError("resource index cannot be negative")
	}

	updatedAt := resource.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	item, err := attributevalue.MarshalMap(ddbResource{
		PK:         canvasPrefix + resource.CanvasID,
		SK:         resourceSK(resource.NodeID, resource.Kind, resource.Index),
		EntityType: entityResource,
		NodeID:     resource.NodeID,
		Kind:       string(resource.Kind),
		Index:      resource.Index,
		Value:      resource.Value,
		UpdatedAt:  updatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal resource: %w", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	}); err != nil {
		return classify("save node resource", err)
	}
	return nil
}

func (r *CanvasRepository) ListNodeResources(ctx context.Context, canvasID, nodeID string, kind ports.ResourceKind) ([]ports.NodeResource, error) {
	prefix := fmt.Sprintf("%s%s#%s#", resourcePrefix, nodeID, kind)
	items, err := r.queryPartition(ctx, canvasPrefix+canvasID, prefix)
	if err != nil {
		return nil, classify("list node resources", err)
	}

	out := make([]ports.NodeResource, 0, len(items))
	for _, item := range items {
		var res ddbResource
		if err := attributevalue.UnmarshalMap(item, &res); err != nil {
			return nil, fmt.Errorf("failed to unmarshal resource: %w", err)
		}
		updatedAt, _ := time.Parse(time.RFC3339Nano, res.UpdatedAt)
		out = append(out, ports.NodeResource{
			CanvasID:  canvasID,
			NodeID:    res.NodeID,
			Kind:      ports.ResourceKind(res.Kind),
			Index:     res.Index,
			Value:     res.Value,
			UpdatedAt: updatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// queryPartition reads every item under pk, optionally restricted to sort
// keys starting with skPrefix
func (r *CanvasRepository) queryPartition(ctx context.Context, pk, skPrefix string) ([]map[string]types.AttributeValue, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(pk))
	if skPrefix != "" {
		keyCond = keyCond.And(expression.Key("SK").BeginsWith(skPrefix))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// batchWrite sends writes in chunks of 25, a few chunks in parallel, retrying
// unprocessed items with backoff
func (r *CanvasRepository) batchWrite(ctx context.Context, writes []types.WriteRequest) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i := 0; i < len(writes); i += batchWriteSize {
		end := i + batchWriteSize
		if end > len(writes) {
			end = len(writes)
		}
		chunk := writes[i:end]
		g.Go(func() error {
			return r.writeChunk(ctx, chunk)
		})
	}
	return g.Wait()
}

func (r *CanvasRepository) writeChunk(ctx context.Context, requests []types.WriteRequest) error {
	unprocessed := requests
	for retry := 0; retry < maxRetries && len(unprocessed) > 0; retry++ {
		if retry > 0 {
			backoff := time.Duration(retry*retry+1) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{r.tableName: unprocessed},
		})
		if err != nil {
			if !isThrottle(err) {
				return err
			}
			r.logger.Warn("Batch write throttled, retrying",
				zap.Error(err),
				zap.Int("retry", retry+1),
			)
			continue
		}
		unprocessed = result.UnprocessedItems[r.tableName]
		if len(unprocessed) > 0 {
			r.logger.Debug("Found unprocessed items, retrying",
				zap.Int("unprocessedCount", len(unprocessed)),
				zap.Int("retry", retry+1),
			)
		}
	}

	if len(unprocessed) > 0 {
		return fmt.Errorf("failed to process %d items after %d retries", len(unprocessed), maxRetries)
	}
	return nil
}

func resourceSK(nodeID string, kind ports.ResourceKind, index int) string {
	return fmt.Sprintf("%s%s#%s#%05d", resourcePrefix, nodeID, kind, index)
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func isThrottle(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "ProvisionedThroughputExceededException", "ThrottlingException", "RequestLimitExceeded":
		return true
	}
	return false
}

// classify maps DynamoDB failures onto application errors
func classify(operation string, err error) error {
	if isThrottle(err) {
		return pkgerrors.NewUnavailableError("canvas store").WithCause(err)
	}
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return pkgerrors.NewInternalError("canvas table does not exist").WithCause(err)
	}
	return pkgerrors.NewDatabaseError(operation, err)
}
