package test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type PostgresSetup struct {
	ConnStr string
	cleanup func()
}

func (p *PostgresSetup) Cleanup() {
	p.cleanup()
}

func SetupPostgres(ctx context.Context, t *testing.T) *PostgresSetup {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("monocart"),
		postgres.WithUsername("monocart"),
		postgres.WithPassword("monocart"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get connection string: %v", err)
	}

	if err := runMigrations(connStr); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to run migrations: %v", err)
	}

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}

	return &PostgresSetup{ConnStr: connStr, cleanup: cleanup}
}

func runMigrations(connStr string) error {
	migrationsPath := getMigrationsPath()

	m, err := migrate.New(migrationsPath, connStr)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func getMigrationsPath() string {
	_, filename, _, _ := runtime.Caller(0)
	testDir := filepath.Dir(filename)
	projectRoot := filepath.Dir(testDir)
	migrationsDir := filepath.Join(projectRoot, "migrations")
	return "file://" + migrationsDir
}

func SetupKafka(ctx context.Context, t *testing.T) ([]string, func()) {
	t.Helper()

	container, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.8.0",
		kafka.WithClusterID("test-cluster"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}

	brokers, err := container.Brokers(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get kafka brokers: %v", err)
	}

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers, cleanup
}

// OpenDB opens a pool on the migrated database and closes it with the test.
func OpenDB(t *testing.T, connStr string) *sql.DB {
	t.Helper()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database connection: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}
	return db
}

// Fixture inserts rows straight into the schema so tests can arrange state
// without going through the API.
type Fixture struct {
	t  *testing.T
	db *sql.DB
}

func NewFixture(t *testing.T, db *sql.DB) *Fixture {
	return &Fixture{t: t, db: db}
}

func (f *Fixture) insert(query string, args ...any) int64 {
	f.t.Helper()
	var id int64
	if err := f.db.QueryRow(query, args...).Scan(&id); err != nil {
		f.t.Fatalf("fixture insert failed: %v\n%s", err, query)
	}
	return id
}

func (f *Fixture) User(email string) int64 {
	f.t.Helper()
	return f.insert(`INSERT INTO users (full_name, email, password_hash) VALUES ($1, $2, 'x') RETURNING id`, "Test "+email, email)
}

func (f *Fixture) Category(name string) int64 {
	f.t.Helper()
	return f.insert(`INSERT INTO categories (name) VALUES ($1) RETURNING id`, name)
}

func (f *Fixture) Product(categoryID int64, name string, price int64, stock int) int64 {
	f.t.Helper()
	return f.insert(`
		INSERT INTO products (name, price, stock_quantity, category_id)
		VALUES ($1, $2, $3, $4) RETURNING id`, name, price, stock, categoryID)
}

func (f *Fixture) CartLine(userID, productID int64, qty int) {
	f.t.Helper()
	cartID := f.insert(`
		INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id`, userID)
	f.insert(`INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1, $2, $3) RETURNING id`, cartID, productID, qty)
}

func (f *Fixture) Stock(productID int64) int {
	f.t.Helper()
	var stock int
	if err := f.db.QueryRow(`SELECT stock_quantity FROM products WHERE id = $1`, productID).Scan(&stock); err != nil {
		f.t.Fatalf("failed to read stock: %v", err)
	}
	return stock
}

func (f *Fixture) Count(table string) int {
	f.t.Helper()
	var n int
	if err := f.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
		f.t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}

func (f *Fixture) SetPrice(productID, price int64) {
	f.t.Helper()
	if _, err := f.db.Exec(`UPDATE products SET price = $2 WHERE id = $1`, productID, price); err != nil {
		f.t.Fatalf("failed to update price: %v", err)
	}
}
