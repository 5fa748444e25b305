package store

import (
	"context"
	"encoding/base64"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ltcatalog/ltcatalog/internal/codegen"
	"github.com/ltcatalog/ltcatalog/internal/config"
)

// FirestoreStore keeps one document per product. DocumentRef.Create fails
// with AlreadyExists when the code's document exists, which is the
// uniqueness guard.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// firestoreProduct is the document shape.
type firestoreProduct struct {
	Type         string  `firestore:"type"`
	ID           string  `firestore:"id"`
	Code         string  `firestore:"product_code"`
	Link         string  `firestore:"link"`
	RMBPrice     float64 `firestore:"rmb_price"`
	Weight       float64 `firestore:"weight"`
	SellingPrice float64 `firestore:"selling_price"`
	CreatedAt    string  `firestore:"created_at"`
}

// docIDProduct encodes the code because "#" reads poorly in console URLs.
func docIDProduct(code string) string {
	return "product_" + base64.RawURLEncoding.EncodeToString([]byte(code))
}

func NewFirestoreStore(ctx context.Context, cfg *config.FirestoreConfig) (*FirestoreStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("firestore config is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "ltcatalog"
	}

	return &FirestoreStore{
		client:     client,
		collection: collection,
	}, nil
}

func (s *FirestoreStore) collectionRef() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

func (s *FirestoreStore) Ping(ctx context.Context) error {
	_, err := s.collectionRef().Limit(1).Documents(ctx).Next()
	if err != nil && err != iterator.Done {
		return err
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *FirestoreStore) CodeExists(ctx context.Context, code string) (bool, error) {
	p, err := s.GetProduct(ctx, code)
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

func (s *FirestoreStore) Codes(ctx context.Context) (codegen.Set, error) {
	docs, err := s.collectionRef().
		Where("type", "==", "product").
		Select("product_code").
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("listing product codes: %w", err)
	}

	codes := codegen.NewSet()
	for _, doc := range docs {
		if code, ok := doc.Data()["product_code"].(string); ok {
			codes.Add(code)
		}
	}
	return codes, nil
}

func (s *FirestoreStore) InsertIfAbsent(ctx context.Context, p *Product) error {
	docRef := s.collectionRef().Doc(docIDProduct(p.Code))
	_, err := docRef.Create(ctx, firestoreProduct{
		Type:         "product",
		ID:           p.ID,
		Code:         p.Code,
		Link:         p.Link,
		RMBPrice:     p.RMBPrice,
		Weight:       p.Weight,
		SellingPrice: p.SellingPrice,
		CreatedAt:    formatTime(p.CreatedAt),
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return ErrConflict
		}
		return fmt.Errorf("creating product: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetProduct(ctx context.Context, code string) (*Product, error) {
	doc, err := s.collectionRef().Doc(docIDProduct(code)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting product: %w", err)
	}
	if !doc.Exists() {
		return nil, nil
	}
	return docToProduct(doc)
}

func (s *FirestoreStore) ListProducts(ctx context.Context) ([]Product, error) {
	docs, err := s.collectionRef().Where("type", "==", "product").Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}

	products := make([]Product, 0, len(docs))
	for _, doc := range docs {
		p, err := docToProduct(doc)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	sortNewestFirst(products)
	return products, nil
}

func (s *FirestoreStore) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	all, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return filterProducts(all, query), nil
}

func (s *FirestoreStore) DeleteProduct(ctx context.Context, code string) error {
	_, err := s.collectionRef().Doc(docIDProduct(code)).Delete(ctx, firestore.Exists)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("deleting product: %w", err)
	}
	return nil
}

func docToProduct(doc *firestore.DocumentSnapshot) (*Product, error) {
	var fp firestoreProduct
	if err := doc.DataTo(&fp); err != nil {
		return nil, fmt.Errorf("decoding product %s: %w", doc.Ref.ID, err)
	}
	return &Product{
		ID:           fp.ID,
		Code:         fp.Code,
		Link:         fp.Link,
		RMBPrice:     fp.RMBPrice,
		Weight:       fp.Weight,
		SellingPrice: fp.SellingPrice,
		CreatedAt:    parseTime(fp.CreatedAt),
	}, nil
}

var _ ProductStore = (*FirestoreStore)(nil)
