package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) SaveProduct(ctx context.Context, p *Product) error {
	query := `INSERT INTO products (item_id, catalog_ref, seller_id, category_id, name, description, price, image_url, stock, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (item_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			image_url = EXCLUDED.image_url,
			updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, query,
		p.ItemID, p.CatalogRef, p.SellerID, p.CategoryID, p.Name,
		p.Description, p.Price, p.ImageURL, p.Stock, p.Source)
	return err
}

func (r *PostgresRepo) GetProduct(ctx context.Context, itemID string) (*Product, error) {
	p := &Product{}
	var durable sql.NullString
	query := `SELECT item_id, catalog_ref, seller_id, category_id, name, description, price, image_url, durable_image_url, stock, source, created_at, updated_at
		FROM products WHERE item_id = $1`
	err := r.db.QueryRowContext(ctx, query, itemID).Scan(
		&p.ItemID, &p.CatalogRef, &p.SellerID, &p.CategoryID, &p.Name,
		&p.Description, &p.Price, &p.ImageURL, &durable, &p.Stock, &p.Source,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.DurableImageURL = durable.String
	return p, nil
}

func (r *PostgresRepo) UpdateDurableImage(ctx context.Context, itemID, durableRef string) error {
	query := `UPDATE products SET durable_image_url = $1, updated_at = NOW() WHERE item_id = $2`
	res, err := r.db.ExecContext(ctx, query, durableRef, itemID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no product with item_id %s", itemID)
	}
	return nil
}

func (r *PostgresRepo) CountProducts(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count)
	return count, err
}

func (r *PostgresRepo) ResolveSeller(ctx context.Context, catalogRef string) (int64, error) {
	var id int64
	// Stub rows get a store name derived from the ref; ops can rename later.
	query := `INSERT INTO sellers (catalog_ref, store_name)
		VALUES ($1, $1)
		ON CONFLICT (catalog_ref) DO UPDATE SET catalog_ref = EXCLUDED.catalog_ref
		RETURNING id`
	err := r.db.QueryRowContext(ctx, query, catalogRef).Scan(&id)
	return id, err
}

func (r *PostgresRepo) GetSeller(ctx context.Context, id int64) (*Seller, error) {
	s := &Seller{}
	query := `SELECT id, store_name, catalog_ref FROM sellers WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.StoreName, &s.CatalogRef)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) CategoryID(ctx context.Context, name string) (int64, error) {
	var id int64
	query := `INSERT INTO categories (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`
	err := r.db.QueryRowContext(ctx, query, name).Scan(&id)
	return id, err
}
