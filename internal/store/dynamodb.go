package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ltcatalog/ltcatalog/internal/codegen"
	"github.com/ltcatalog/ltcatalog/internal/config"
)

// DynamoDBAPI is the subset of the DynamoDB client the store uses.
type DynamoDBAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBStore keeps one item per product in a single table keyed by
// pk = "PRODUCT#<code>", sk = "#METADATA". A conditional put on
// attribute_not_exists(pk) is the uniqueness guard.
type DynamoDBStore struct {
	client    DynamoDBAPI
	tableName string
}

func NewDynamoDBStore(ctx context.Context, cfg *config.DynamoDBConfig) (*DynamoDBStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("dynamodb config is required")
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	if cfg.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.EndpointURL)
	}

	return NewDynamoDBStoreWithClient(dynamodb.NewFromConfig(awsCfg), cfg.Table), nil
}

// NewDynamoDBStoreWithClient builds a store around an existing client.
func NewDynamoDBStoreWithClient(client DynamoDBAPI, table string) *DynamoDBStore {
	return &DynamoDBStore{client: client, tableName: table}
}

func (s *DynamoDBStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	return err
}

func (s *DynamoDBStore) Close() error {
	return nil
}

const productPKPrefix = "PRODUCT#"

func pkProduct(code string) string {
	return productPKPrefix + code
}

func skMetadata() string {
	return "#METADATA"
}

func (s *DynamoDBStore) key(code string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pkProduct(code)},
		"sk": &types.AttributeValueMemberS{Value: skMetadata()},
	}
}

func (s *DynamoDBStore) CodeExists(ctx context.Context, code string) (bool, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(s.tableName),
		Key:                  s.key(code),
		ProjectionExpression: aws.String("pk"),
	})
	if err != nil {
		return false, fmt.Errorf("checking product code: %w", err)
	}
	return resp.Item != nil, nil
}

func (s *DynamoDBStore) Codes(ctx context.Context) (codegen.Set, error) {
	codes := codegen.NewSet()
	err := s.scanProducts(ctx, aws.String("product_code"), func(item map[string]types.AttributeValue) {
		if code := attrString(item, "product_code"); code != "" {
			codes.Add(code)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("listing product codes: %w", err)
	}
	return codes, nil
}

func (s *DynamoDBStore) InsertIfAbsent(ctx context.Context, p *Product) error {
	item := s.key(p.Code)
	item["type"] = &types.AttributeValueMemberS{Value: "product"}
	item["id"] = &types.AttributeValueMemberS{Value: p.ID}
	item["product_code"] = &types.AttributeValueMemberS{Value: p.Code}
	item["link"] = &types.AttributeValueMemberS{Value: p.Link}
	item["rmb_price"] = &types.AttributeValueMemberN{Value: formatFloat(p.RMBPrice)}
	item["weight"] = &types.AttributeValueMemberN{Value: formatFloat(p.Weight)}
	item["selling_price"] = &types.AttributeValueMemberN{Value: formatFloat(p.SellingPrice)}
	item["created_at"] = &types.AttributeValueMemberS{Value: formatTime(p.CreatedAt)}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrConflict
		}
		return fmt.Errorf("creating product: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) GetProduct(ctx context.Context, code string) (*Product, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(code),
	})
	if err != nil {
		return nil, fmt.Errorf("getting product: %w", err)
	}
	if resp.Item == nil {
		return nil, nil
	}
	return itemToProduct(resp.Item), nil
}

func (s *DynamoDBStore) ListProducts(ctx context.Context) ([]Product, error) {
	products := []Product{}
	err := s.scanProducts(ctx, nil, func(item map[string]types.AttributeValue) {
		products = append(products, *itemToProduct(item))
	})
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	sortNewestFirst(products)
	return products, nil
}

func (s *DynamoDBStore) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	all, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return filterProducts(all, query), nil
}

func (s *DynamoDBStore) DeleteProduct(ctx context.Context, code string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(code),
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting product: %w", err)
	}
	return nil
}

// scanProducts pages through all product items.
func (s *DynamoDBStore) scanProducts(ctx context.Context, projection *string, fn func(map[string]types.AttributeValue)) error {
	var exclusiveStartKey map[string]types.AttributeValue
	for {
		input := &dynamodb.ScanInput{
			TableName:        aws.String(s.tableName),
			FilterExpression: aws.String("begins_with(pk, :prefix) AND sk = :meta"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prefix": &types.AttributeValueMemberS{Value: productPKPrefix},
				":meta":   &types.AttributeValueMemberS{Value: skMetadata()},
			},
			ProjectionExpression: projection,
		}
		if exclusiveStartKey != nil {
			input.ExclusiveStartKey = exclusiveStartKey
		}

		resp, err := s.client.Scan(ctx, input)
		if err != nil {
			return err
		}
		for _, item := range resp.Items {
			fn(item)
		}

		if len(resp.LastEvaluatedKey) == 0 {
			return nil
		}
		exclusiveStartKey = resp.LastEvaluatedKey
	}
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func itemToProduct(item map[string]types.AttributeValue) *Product {
	return &Product{
		ID:           attrString(item, "id"),
		Code:         attrString(item, "product_code"),
		Link:         attrString(item, "link"),
		RMBPrice:     attrFloat(item, "rmb_price"),
		Weight:       attrFloat(item, "weight"),
		SellingPrice: attrFloat(item, "selling_price"),
		CreatedAt:    parseTime(attrString(item, "created_at")),
	}
}

func attrString(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func attrFloat(item map[string]types.AttributeValue, name string) float64 {
	if v, ok := item[name].(*types.AttributeValueMemberN); ok {
		f, _ := strconv.ParseFloat(v.Value, 64)
		return f
	}
	return 0
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var _ ProductStore = (*DynamoDBStore)(nil)
