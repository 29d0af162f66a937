package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/syedhariswaseem/lazr/internal/domain"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidProduct  = errors.New("invalid product")
)

// NewProduct is the admin input for a catalog entry. Price is in cents.
type NewProduct struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Price       int64   `json:"price" validate:"gt=0"`
	Category    string  `json:"category" validate:"required"`
	ImageURL    string  `json:"imageUrl"`
	Rating      float64 `json:"rating" validate:"gte=0,lte=5"`
	StockCount  int     `json:"stockCount" validate:"gte=0"`
}

type Repository struct {
	db       *sql.DB
	validate *validator.Validate
	now      func() time.Time
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db, validate: validator.New(), now: time.Now}, nil
}

// RunMigrations applies the embedded schema.
func (r *Repository) RunMigrations() error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

const productColumns = `id, name, description, price, category, image_url, rating, stock_count, in_stock, created_at`

func scanProduct(row interface{ Scan(dest ...any) error }) (*domain.Product, error) {
	p := &domain.Product{}
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.Category,
		&p.ImageURL,
		&p.Rating,
		&p.StockCount,
		&p.InStock,
		&p.CreatedAt,
	)
	return p, err
}

// ListProducts returns the catalog newest first.
func (r *Repository) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product %d: %w", id, err)
	}
	return p, nil
}

// CreateProduct validates and stores a product. InStock follows StockCount.
func (r *Repository) CreateProduct(ctx context.Context, in NewProduct) (*domain.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	if err := r.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}

	p := &domain.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		ImageURL:    in.ImageURL,
		Rating:      in.Rating,
		StockCount:  in.StockCount,
		InStock:     in.StockCount > 0,
		CreatedAt:   r.now().UTC(),
	}
	if err := r.insert(ctx, r.db, p); err != nil {
		return nil, err
	}
	return p, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) insert(ctx context.Context, db execer, p *domain.Product) error {
	query := `
		INSERT INTO products (name, description, price, category, image_url, rating, stock_count, in_stock, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	res, err := db.ExecContext(ctx, query,
		p.Name, p.Description, p.Price, p.Category, p.ImageURL, p.Rating, p.StockCount, p.InStock, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read product id: %w", err)
	}
	p.ID = id
	return nil
}

// Seed fills an empty catalog with the default product line. It reports how
// many products were inserted.
func (r *Repository) Seed(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// later entries are newer so listing order matches the seed order reversed
	base := r.now().UTC().Add(-time.Duration(len(seedProducts)) * time.Minute)
	for i, sp := range seedProducts {
		p := sp
		p.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := r.insert(ctx, tx, &p); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit seed: %w", err)
	}
	return len(seedProducts), nil
}
