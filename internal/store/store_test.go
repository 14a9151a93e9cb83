package store

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

func TestCoerceItem_FloatsBecomeDecimal(t *testing.T) {
	item := map[string]interface{}{
		"price": 12.345,
		"meta": map[string]interface{}{
			"atr": 1.5,
		},
		"tags": []interface{}{1.1, "keep-me"},
		"name": "AAPL",
	}

	out := CoerceItem(item)

	if _, ok := out["price"].(decimal.Decimal); !ok {
		t.Fatalf("expected price to be decimal.Decimal, got %T", out["price"])
	}
	nested := out["meta"].(map[string]interface{})
	if _, ok := nested["atr"].(decimal.Decimal); !ok {
		t.Fatalf("expected nested atr to be decimal.Decimal, got %T", nested["atr"])
	}
	tags := out["tags"].([]interface{})
	if _, ok := tags[0].(decimal.Decimal); !ok {
		t.Fatalf("expected tags[0] to be decimal.Decimal, got %T", tags[0])
	}
	if tags[1] != "keep-me" {
		t.Errorf("expected non-float slice element to pass through unchanged")
	}
	if out["name"] != "AAPL" {
		t.Errorf("expected string to pass through unchanged")
	}
}

// fakeDynamo is a minimal in-process dynamoAPI used to test chunking and
// retry behavior without a real AWS endpoint.
type fakeDynamo struct {
	dynamoAPI
	batchCalls        int
	unprocessedOnCall map[int]int // call index -> unprocessed item count to report
	putErr            error
}

func (f *fakeDynamo) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	callIdx := f.batchCalls
	f.batchCalls++

	var table string
	for t := range in.RequestItems {
		table = t
	}

	unprocessedCount := f.unprocessedOnCall[callIdx]
	if unprocessedCount == 0 {
		return &dynamodb.BatchWriteItemOutput{}, nil
	}

	requests := in.RequestItems[table]
	if unprocessedCount > len(requests) {
		unprocessedCount = len(requests)
	}
	return &dynamodb.BatchWriteItemOutput{
		UnprocessedItems: map[string][]types.WriteRequest{
			table: requests[:unprocessedCount],
		},
	}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &dynamodb.PutItemOutput{}, nil
}

func TestBatchPut_ChunksAt25(t *testing.T) {
	items := make([]map[string]interface{}, 60)
	for i := range items {
		items[i] = map[string]interface{}{"ticker": "T"}
	}

	fake := &fakeDynamo{}
	gw := newGatewayWithAPI(fake, nil)

	outcome := gw.BatchPut(context.Background(), "InactiveTickersForDayTrading", items)
	if !outcome.Ok() {
		t.Fatalf("expected ok outcome, got %v", outcome)
	}
	if fake.batchCalls != 3 {
		t.Errorf("expected 3 chunk calls for 60 items (25+25+10), got %d", fake.batchCalls)
	}
}

func TestBatchPut_RetriesUnprocessedThenSucceeds(t *testing.T) {
	items := make([]map[string]interface{}, 5)
	for i := range items {
		items[i] = map[string]interface{}{"ticker": "T"}
	}

	fake := &fakeDynamo{
		unprocessedOnCall: map[int]int{0: 5, 1: 2},
	}
	gw := newGatewayWithAPI(fake, nil)

	outcome := gw.BatchPut(context.Background(), "tbl", items)
	if !outcome.Ok() {
		t.Fatalf("expected eventual success, got %v", outcome)
	}
	if fake.batchCalls != 3 {
		t.Errorf("expected 3 calls (initial + 2 retries), got %d", fake.batchCalls)
	}
}

func TestBatchPut_RetryableAfterExhaustingAttempts(t *testing.T) {
	items := []map[string]interface{}{{"ticker": "T"}}

	fake := &fakeDynamo{
		unprocessedOnCall: map[int]int{0: 1, 1: 1, 2: 1, 3: 1},
	}
	gw := newGatewayWithAPI(fake, nil)

	outcome := gw.BatchPut(context.Background(), "tbl", items)
	if outcome.Ok() {
		t.Fatal("expected non-ok outcome after exhausting retries")
	}
	if !outcome.Retryable() {
		t.Errorf("expected Retryable status, got %v", outcome.Status)
	}
}

func TestGateway_Put_ClassifiesFatalError(t *testing.T) {
	fake := &fakeDynamo{putErr: errors.New("boom: validation error")}
	gw := newGatewayWithAPI(fake, nil)

	outcome := gw.Put(context.Background(), "tbl", map[string]interface{}{"ticker": "T"})
	if outcome.Ok() {
		t.Fatal("expected non-ok outcome")
	}
	if outcome.Status != Fatal {
		t.Errorf("expected Fatal classification for unrecognized error, got %v", outcome.Status)
	}
}

func TestGateway_Put_ClassifiesRetryableOnThrottle(t *testing.T) {
	fake := &fakeDynamo{putErr: &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}}
	gw := newGatewayWithAPI(fake, nil)

	outcome := gw.Put(context.Background(), "tbl", map[string]interface{}{"ticker": "T"})
	if !outcome.Retryable() {
		t.Errorf("expected Retryable classification on throttle, got %v", outcome.Status)
	}
}
