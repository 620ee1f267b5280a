package catalog_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sokoni/backend/features/catalog"
)

func productColumns() []string {
	return []string{"item_id", "catalog_ref", "seller_id", "category_id", "name", "description", "price", "image_url", "durable_image_url", "stock", "source", "created_at", "updated_at"}
}

func TestPostgresRepo_SaveProduct(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := catalog.NewPostgresRepo(db)

	p := &catalog.Product{
		ItemID:      "1234567890123456",
		CatalogRef:  "https://market.example.com/c",
		SellerID:    7,
		CategoryID:  3,
		Name:        "Beaded Sandals",
		Description: "hand made",
		Price:       2499,
		ImageURL:    "https://img.example.com/1.jpg",
		Source:      "catalog_sync",
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO products")).
		WithArgs(p.ItemID, p.CatalogRef, p.SellerID, p.CategoryID, p.Name, p.Description, p.Price, p.ImageURL, p.Stock, p.Source).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, repo.SaveProduct(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_GetProduct(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := catalog.NewPostgresRepo(db)
	now := time.Now()

	t.Run("Found", func(t *testing.T) {
		rows := sqlmock.NewRows(productColumns()).
			AddRow("1234567890123456", "https://market.example.com/c", int64(7), int64(3),
				"Beaded Sandals", "hand made", 2499.0, "https://img.example.com/1.jpg",
				"s3://durable/1.jpg", 5, "catalog_sync", now, now)

		mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE item_id = $1")).
			WithArgs("1234567890123456").
			WillReturnRows(rows)

		p, err := repo.GetProduct(context.Background(), "1234567890123456")
		require.NoError(t, err)
		assert.Equal(t, "Beaded Sandals", p.Name)
		assert.Equal(t, "s3://durable/1.jpg", p.DurableImageURL)
		assert.Equal(t, int64(7), p.SellerID)
	})

	t.Run("NullDurableImage", func(t *testing.T) {
		rows := sqlmock.NewRows(productColumns()).
			AddRow("1234567890123456", "https://market.example.com/c", int64(7), int64(3),
				"Beaded Sandals", "", 2499.0, "https://img.example.com/1.jpg",
				nil, 0, "catalog_sync", now, now)

		mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE item_id = $1")).
			WithArgs("1234567890123456").
			WillReturnRows(rows)

		p, err := repo.GetProduct(context.Background(), "1234567890123456")
		require.NoError(t, err)
		assert.Empty(t, p.DurableImageURL)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE item_id = $1")).
			WithArgs("0000000000000000").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetProduct(context.Background(), "0000000000000000")
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_UpdateDurableImage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := catalog.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET durable_image_url = $1")).
			WithArgs("s3://durable/1.jpg", "1234567890123456").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.UpdateDurableImage(context.Background(), "1234567890123456", "s3://durable/1.jpg"))
	})

	t.Run("UnknownItem", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET durable_image_url = $1")).
			WithArgs("s3://durable/x.jpg", "0000000000000000").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.Error(t, repo.UpdateDurableImage(context.Background(), "0000000000000000", "s3://durable/x.jpg"))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ResolveSeller(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := catalog.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO sellers (catalog_ref, store_name)")).
		WithArgs("https://market.example.com/sellers/acme/catalog").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := repo.ResolveSeller(context.Background(), "https://market.example.com/sellers/acme/catalog")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_GetSeller(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := catalog.NewPostgresRepo(db)

	t.Run("Found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, store_name, catalog_ref FROM sellers WHERE id = $1")).
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "store_name", "catalog_ref"}).
				AddRow(int64(42), "Acme Crafts", "https://market.example.com/sellers/acme/catalog"))

		s, err := repo.GetSeller(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, int64(42), s.ID)
		assert.Equal(t, "Acme Crafts", s.StoreName)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, store_name, catalog_ref FROM sellers WHERE id = $1")).
			WithArgs(int64(99)).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetSeller(context.Background(), 99)
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_CategoryID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := catalog.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO categories (name)")).
		WithArgs("Shoes").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

	id, err := repo.CategoryID(context.Background(), "Shoes")
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}
