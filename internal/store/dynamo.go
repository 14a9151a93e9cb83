package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// maxBatchSize is the store's hard limit on items per BatchWriteItem
// call, matching DynamoDB's own 25-item ceiling.
const maxBatchSize = 25

// maxBatchRetries bounds the number of retry attempts for unprocessed
// batch items, each with exponential backoff.
const maxBatchRetries = 3

// dynamoAPI is the subset of *dynamodb.Client the Gateway depends on. It
// exists so tests can substitute a fake, following the teacher's preference
// for small explicit collaborator interfaces (internal/broker/broker.go's
// Registry, internal/risk/circuit_breaker.go's stand-alone state machine).
type dynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Gateway is the Store Gateway: typed CRUD and batched writes over the
// engine's DynamoDB-shaped tables, with transparent float-to-decimal
// coercion.
type Gateway struct {
	client dynamoAPI
	logger *log.Logger
}

// NewGateway wraps a live DynamoDB client.
func NewGateway(client *dynamodb.Client, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	return &Gateway{client: client, logger: logger}
}

func newGatewayWithAPI(client dynamoAPI, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	return &Gateway{client: client, logger: logger}
}

// Put writes a single item, coercing every float attribute to decimal.
func (g *Gateway) Put(ctx context.Context, table string, item map[string]interface{}) Outcome {
	av, err := attributevalue.MarshalMap(CoerceItem(item))
	if err != nil {
		return fatalOutcome(fmt.Errorf("store: marshal put item: %w", err))
	}

	_, err = g.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      av,
	})
	return g.classify(err)
}

// Get reads a single item by key. Returns ok with a nil map if absent —
// a missing item is not an error condition.
func (g *Gateway) Get(ctx context.Context, table string, key map[string]interface{}) (map[string]interface{}, Outcome) {
	av, err := attributevalue.MarshalMap(CoerceItem(key))
	if err != nil {
		return nil, fatalOutcome(fmt.Errorf("store: marshal get key: %w", err))
	}

	out, err := g.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       av,
	})
	if outcome := g.classify(err); !outcome.Ok() {
		return nil, outcome
	}
	if out.Item == nil {
		return nil, okOutcome()
	}

	var item map[string]interface{}
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fatalOutcome(fmt.Errorf("store: unmarshal get item: %w", err))
	}
	return item, okOutcome()
}

// Delete removes a single item by key.
func (g *Gateway) Delete(ctx context.Context, table string, key map[string]interface{}) Outcome {
	av, err := attributevalue.MarshalMap(CoerceItem(key))
	if err != nil {
		return fatalOutcome(fmt.Errorf("store: marshal delete key: %w", err))
	}

	_, err = g.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(table),
		Key:       av,
	})
	return g.classify(err)
}

// Update applies a partial update expression to a single item.
func (g *Gateway) Update(ctx context.Context, table string, key map[string]interface{}, updateExpr string, values map[string]interface{}) Outcome {
	keyAV, err := attributevalue.MarshalMap(CoerceItem(key))
	if err != nil {
		return fatalOutcome(fmt.Errorf("store: marshal update key: %w", err))
	}
	valuesAV, err := attributevalue.MarshalMap(CoerceValues(values))
	if err != nil {
		return fatalOutcome(fmt.Errorf("store: marshal update values: %w", err))
	}

	_, err = g.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       keyAV,
		UpdateExpression:          aws.String(updateExpr),
		ExpressionAttributeValues: valuesAV,
	})
	return g.classify(err)
}

// Query runs a key-condition query against a table (optionally an index).
func (g *Gateway) Query(ctx context.Context, table, keyExpr string, values map[string]interface{}) ([]map[string]interface{}, Outcome) {
	valuesAV, err := attributevalue.MarshalMap(CoerceValues(values))
	if err != nil {
		return nil, fatalOutcome(fmt.Errorf("store: marshal query values: %w", err))
	}

	out, err := g.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    aws.String(keyExpr),
		ExpressionAttributeValues: valuesAV,
	})
	if outcome := g.classify(err); !outcome.Ok() {
		return nil, outcome
	}

	return unmarshalItems(out.Items)
}

// Scan runs a filtered scan against a table.
func (g *Gateway) Scan(ctx context.Context, table, filterExpr string, names map[string]string, values map[string]interface{}) ([]map[string]interface{}, Outcome) {
	input := &dynamodb.ScanInput{TableName: aws.String(table)}
	if filterExpr != "" {
		input.FilterExpression = aws.String(filterExpr)
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}
	if len(values) > 0 {
		valuesAV, err := attributevalue.MarshalMap(CoerceValues(values))
		if err != nil {
			return nil, fatalOutcome(fmt.Errorf("store: marshal scan values: %w", err))
		}
		input.ExpressionAttributeValues = valuesAV
	}

	out, err := g.client.Scan(ctx, input)
	if outcome := g.classify(err); !outcome.Ok() {
		return nil, outcome
	}
	return unmarshalItems(out.Items)
}

// BatchPut writes items in chunks of maxBatchSize, retrying unprocessed
// items with exponential backoff up to maxBatchRetries attempts. Returns
// Retryable if any chunk still has unprocessed items after exhausting
// retries.
func (g *Gateway) BatchPut(ctx context.Context, table string, items []map[string]interface{}) Outcome {
	for start := 0; start < len(items); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(items) {
			end = len(items)
		}
		if outcome := g.batchPutChunk(ctx, table, items[start:end]); !outcome.Ok() {
			return outcome
		}
	}
	return okOutcome()
}

func (g *Gateway) batchPutChunk(ctx context.Context, table string, chunk []map[string]interface{}) Outcome {
	writeRequests, err := toWriteRequests(chunk)
	if err != nil {
		return fatalOutcome(err)
	}

	backoff := 200 * time.Millisecond
	for attempt := 0; attempt <= maxBatchRetries; attempt++ {
		out, err := g.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{table: writeRequests},
		})
		if outcome := g.classify(err); !outcome.Ok() {
			if outcome.Retryable() && attempt < maxBatchRetries {
				g.logger.Printf("[store] batch_put retry %d/%d on %s: %v", attempt+1, maxBatchRetries, table, err)
				time.Sleep(backoff)
				backoff *= 2
				continue
			}
			return outcome
		}

		unprocessed := out.UnprocessedItems[table]
		if len(unprocessed) == 0 {
			return okOutcome()
		}
		if attempt == maxBatchRetries {
			return retryableOutcome(fmt.Errorf("store: %d unprocessed items remain in %s after %d attempts", len(unprocessed), table, maxBatchRetries+1))
		}

		g.logger.Printf("[store] batch_put: %d unprocessed items in %s, retry %d/%d", len(unprocessed), table, attempt+1, maxBatchRetries)
		writeRequests = unprocessed
		time.Sleep(backoff)
		backoff *= 2
	}
	return okOutcome()
}

func toWriteRequests(chunk []map[string]interface{}) ([]types.WriteRequest, error) {
	requests := make([]types.WriteRequest, 0, len(chunk))
	for _, item := range chunk {
		av, err := attributevalue.MarshalMap(CoerceItem(item))
		if err != nil {
			return nil, fmt.Errorf("store: marshal batch item: %w", err)
		}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: av},
		})
	}
	return requests, nil
}

func unmarshalItems(raw []map[string]types.AttributeValue) ([]map[string]interface{}, Outcome) {
	items := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		var item map[string]interface{}
		if err := attributevalue.UnmarshalMap(r, &item); err != nil {
			return nil, fatalOutcome(fmt.Errorf("store: unmarshal item: %w", err))
		}
		items = append(items, item)
	}
	return items, okOutcome()
}

// classify turns a transport error into an Outcome. Timeouts, throttling,
// and internal-server-shaped errors are Retryable; everything else
// (validation errors, missing table, malformed requests) is Fatal. A nil
// error is OK.
func (g *Gateway) classify(err error) Outcome {
	if err == nil {
		return okOutcome()
	}

	var throttle *types.ProvisionedThroughputExceededException
	var internal *types.InternalServerError
	var requestLimit *types.RequestLimitExceeded
	switch {
	case errors.As(err, &throttle):
		return retryableOutcome(err)
	case errors.As(err, &internal):
		return retryableOutcome(err)
	case errors.As(err, &requestLimit):
		return retryableOutcome(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return retryableOutcome(err)
	}
	return fatalOutcome(err)
}
