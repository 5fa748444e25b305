package store

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamoDB is an in-memory DynamoDBAPI that honors the two condition
// expressions the store issues.
type fakeDynamoDB struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	scans int
}

func newFakeDynamoDB() *fakeDynamoDB {
	return &fakeDynamoDB{items: make(map[string]map[string]types.AttributeValue)}
}

func fakeKey(key map[string]types.AttributeValue) string {
	return attrString(key, "pk") + "|" + attrString(key, "sk")
}

func (f *fakeDynamoDB) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, nil
}

func (f *fakeDynamoDB) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := fakeKey(params.Item)
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(pk)" {
		if _, ok := f.items[k]; ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	f.items[k] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoDB) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[fakeKey(params.Key)]}, nil
}

func (f *fakeDynamoDB) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := fakeKey(params.Key)
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_exists(pk)" {
		if _, ok := f.items[k]; !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	delete(f.items, k)
	return &dynamodb.DeleteItemOutput{}, nil
}

// Scan returns one item per page so pagination is exercised.
func (f *fakeDynamoDB) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++

	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if params.ExclusiveStartKey != nil {
		after := fakeKey(params.ExclusiveStartKey)
		for i, k := range keys {
			if k == after {
				start = i + 1
				break
			}
		}
	}
	if start >= len(keys) {
		return &dynamodb.ScanOutput{}, nil
	}

	item := f.items[keys[start]]
	out := &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{item}}
	if start+1 < len(keys) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"pk": item["pk"],
			"sk": item["sk"],
		}
	}
	return out, nil
}

func TestDynamoDBStore(t *testing.T) {
	runStoreConformance(t, NewDynamoDBStoreWithClient(newFakeDynamoDB(), "products"))
}

func TestDynamoDBStoreConcurrentInserts(t *testing.T) {
	runConcurrentInserts(t, NewDynamoDBStoreWithClient(newFakeDynamoDB(), "products"))
}

func TestDynamoDBStoreKeys(t *testing.T) {
	fake := newFakeDynamoDB()
	s := NewDynamoDBStoreWithClient(fake, "products")
	if err := s.InsertIfAbsent(context.Background(), newProduct("#LT123", "https://k.example", parseTime("2026-01-01T00:00:00.000Z"))); err != nil {
		t.Fatal(err)
	}

	item, ok := fake.items["PRODUCT##LT123|#METADATA"]
	if !ok {
		t.Fatalf("item not stored under expected key; have %v", fake.items)
	}
	if got := attrFloat(item, "selling_price"); got != 450 {
		t.Errorf("selling_price = %v, want 450", got)
	}
	if got := attrString(item, "created_at"); got != "2026-01-01T00:00:00.000Z" {
		t.Errorf("created_at = %q", got)
	}
}
