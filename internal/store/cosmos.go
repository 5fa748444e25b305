package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/ltcatalog/ltcatalog/internal/codegen"
	"github.com/ltcatalog/ltcatalog/internal/config"
)

// CosmosStore keeps products in a Cosmos DB container partitioned by type.
// CreateItem on an existing id fails with 409 Conflict, which is the
// uniqueness guard.
type CosmosStore struct {
	client    *azcosmos.ContainerClient
	database  string
	container string
}

type cosmosProduct struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	ProductID    string  `json:"product_id"`
	Code         string  `json:"product_code"`
	Link         string  `json:"link"`
	RMBPrice     float64 `json:"rmb_price"`
	Weight       float64 `json:"weight"`
	SellingPrice float64 `json:"selling_price"`
	CreatedAt    string  `json:"created_at"`
}

// cosmosPartition is the partition key value for every product item.
var cosmosPartition = azcosmos.NewPartitionKeyString("product")

// docIDProductCosmos maps a code to an item id. Cosmos ids may not contain
// '#', so the prefix is replaced.
func docIDProductCosmos(code string) string {
	n, err := codegen.Parse(code)
	if err != nil {
		return "product_" + code
	}
	return fmt.Sprintf("product_LT%03d", n)
}

func NewCosmosStore(ctx context.Context, cfg *config.CosmosConfig) (*CosmosStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cosmos config is required")
	}
	if cfg.Endpoint == "" || cfg.MasterKey == "" {
		return nil, fmt.Errorf("cosmos endpoint and master key are required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("cosmos database name is required")
	}
	if cfg.Container == "" {
		return nil, fmt.Errorf("cosmos container name is required")
	}

	cred, err := azcosmos.NewKeyCredential(cfg.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("creating cosmos key credential: %w", err)
	}

	client, err := azcosmos.NewClientWithKey(cfg.Endpoint, cred, &azcosmos.ClientOptions{
		ClientOptions: policy.ClientOptions{},
	})
	if err != nil {
		return nil, fmt.Errorf("creating cosmos client: %w", err)
	}

	containerClient, err := client.NewContainer(cfg.Database, cfg.Container)
	if err != nil {
		return nil, fmt.Errorf("getting container client: %w", err)
	}

	return &CosmosStore{
		client:    containerClient,
		database:  cfg.Database,
		container: cfg.Container,
	}, nil
}

func (s *CosmosStore) Ping(ctx context.Context) error {
	_, err := s.client.Read(ctx, nil)
	return err
}

func (s *CosmosStore) Close() error {
	return nil
}

func (s *CosmosStore) CodeExists(ctx context.Context, code string) (bool, error) {
	p, err := s.GetProduct(ctx, code)
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

func (s *CosmosStore) Codes(ctx context.Context) (codegen.Set, error) {
	codes := codegen.NewSet()
	err := s.queryItems(ctx, "SELECT c.product_code FROM c WHERE c.type = 'product'", func(item cosmosProduct) {
		codes.Add(item.Code)
	})
	if err != nil {
		return nil, fmt.Errorf("listing product codes: %w", err)
	}
	return codes, nil
}

func (s *CosmosStore) InsertIfAbsent(ctx context.Context, p *Product) error {
	data, err := json.Marshal(cosmosProduct{
		ID:           docIDProductCosmos(p.Code),
		Type:         "product",
		ProductID:    p.ID,
		Code:         p.Code,
		Link:         p.Link,
		RMBPrice:     p.RMBPrice,
		Weight:       p.Weight,
		SellingPrice: p.SellingPrice,
		CreatedAt:    formatTime(p.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("marshaling product: %w", err)
	}

	_, err = s.client.CreateItem(ctx, cosmosPartition, data, nil)
	if err != nil {
		if cosmosStatus(err) == http.StatusConflict {
			return ErrConflict
		}
		return fmt.Errorf("creating product: %w", err)
	}
	return nil
}

func (s *CosmosStore) GetProduct(ctx context.Context, code string) (*Product, error) {
	resp, err := s.client.ReadItem(ctx, cosmosPartition, docIDProductCosmos(code), nil)
	if err != nil {
		if cosmosStatus(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting product: %w", err)
	}

	var item cosmosProduct
	if err := json.Unmarshal(resp.Value, &item); err != nil {
		return nil, fmt.Errorf("unmarshaling product: %w", err)
	}
	return item.toProduct(), nil
}

func (s *CosmosStore) ListProducts(ctx context.Context) ([]Product, error) {
	products := []Product{}
	err := s.queryItems(ctx, "SELECT * FROM c WHERE c.type = 'product'", func(item cosmosProduct) {
		products = append(products, *item.toProduct())
	})
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	sortNewestFirst(products)
	return products, nil
}

func (s *CosmosStore) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	all, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return filterProducts(all, query), nil
}

func (s *CosmosStore) DeleteProduct(ctx context.Context, code string) error {
	_, err := s.client.DeleteItem(ctx, cosmosPartition, docIDProductCosmos(code), nil)
	if err != nil {
		if cosmosStatus(err) == http.StatusNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("deleting product: %w", err)
	}
	return nil
}

func (s *CosmosStore) queryItems(ctx context.Context, query string, fn func(cosmosProduct)) error {
	pager := s.client.NewQueryItemsPager(query, cosmosPartition, &azcosmos.QueryOptions{})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, raw := range resp.Items {
			var item cosmosProduct
			if err := json.Unmarshal(raw, &item); err != nil {
				continue
			}
			fn(item)
		}
	}
	return nil
}

func (c cosmosProduct) toProduct() *Product {
	return &Product{
		ID:           c.ProductID,
		Code:         c.Code,
		Link:         c.Link,
		RMBPrice:     c.RMBPrice,
		Weight:       c.Weight,
		SellingPrice: c.SellingPrice,
		CreatedAt:    parseTime(c.CreatedAt),
	}
}

// cosmosStatus extracts the HTTP status from an Azure response error, or 0.
func cosmosStatus(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

var _ ProductStore = (*CosmosStore)(nil)
