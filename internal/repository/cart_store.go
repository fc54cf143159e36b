package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/medikart/storefront/internal/domain"
	"github.com/medikart/storefront/internal/port"
)

// schema holds the guest cart for one profile. The store is rewritten as a
// whole on every local mutation, so there is no per-row update path.
const schema = `
CREATE TABLE IF NOT EXISTS cart_items (
	id             TEXT PRIMARY KEY,
	product_id     TEXT NOT NULL,
	pharmacy_id    TEXT NOT NULL,
	quantity       INTEGER NOT NULL CHECK (quantity >= 1),
	price_amount   TEXT NOT NULL,
	price_currency TEXT NOT NULL,
	product        TEXT NOT NULL,
	pharmacy       TEXT NOT NULL,
	created_at     TIMESTAMP NOT NULL,
	position       INTEGER NOT NULL,
	UNIQUE (product_id, pharmacy_id)
);`

type cartStore struct {
	db *sql.DB
}

// OpenDB opens (creating if needed) the profile-scoped sqlite database
// backing the guest cart.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Exec schema: %w", err)
	}

	return db, nil
}

func NewCartStore(db *sql.DB) (port.CartStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}

	return &cartStore{db: db}, nil
}

func (s *cartStore) Load(ctx context.Context) ([]domain.CartItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, pharmacy_id, quantity,
		       price_amount, price_currency, product, pharmacy, created_at
		FROM cart_items
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("db.QueryContext: %w", err)
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanCartItem: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	// Merge defensively: the invariant also holds for stores written by
	// older versions without the UNIQUE constraint.
	return domain.MergeItems(items), nil
}

// Save replaces the stored cart with items. Write-through from the engine on
// every guest-cart mutation.
func (s *cartStore) Save(ctx context.Context, items []domain.CartItem) error {
	merged := domain.MergeItems(items)

	_, err := withTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items`); err != nil {
			return struct{}{}, fmt.Errorf("tx.ExecContext delete: %w", err)
		}

		for pos, item := range merged {
			if err := insertCartItem(ctx, tx, item, pos); err != nil {
				return struct{}{}, fmt.Errorf("insertCartItem[%s]: %w", item.ID, err)
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("withTx: %w", err)
	}

	return nil
}

func (s *cartStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_items`); err != nil {
		return fmt.Errorf("db.ExecContext: %w", err)
	}

	return nil
}

func insertCartItem(ctx context.Context, tx *sql.Tx, item domain.CartItem, position int) error {
	product, err := json.Marshal(snapshotProduct(item.Product))
	if err != nil {
		return fmt.Errorf("json.Marshal product: %w", err)
	}

	pharmacy, err := json.Marshal(snapshotPharmacy(item.Pharmacy))
	if err != nil {
		return fmt.Errorf("json.Marshal pharmacy: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cart_items
			(id, product_id, pharmacy_id, quantity,
			 price_amount, price_currency, product, pharmacy, created_at, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.ProductID, item.PharmacyID, item.Quantity,
		item.UnitPrice.Amount.String(), item.UnitPrice.Currency.String(),
		string(product), string(pharmacy), item.CreatedAt.UTC(), position)
	if err != nil {
		return fmt.Errorf("tx.ExecContext insert: %w", err)
	}

	return nil
}

type productRecord struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	GenericName          string `json:"generic_name,omitempty"`
	Dosage               string `json:"dosage,omitempty"`
	Manufacturer         string `json:"manufacturer,omitempty"`
	RequiresPrescription bool   `json:"requires_prescription"`
}

type pharmacyRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	City string `json:"city,omitempty"`
}

func snapshotProduct(p domain.ProductSnapshot) productRecord {
	return productRecord{
		ID:                   p.ID,
		Name:                 p.Name,
		GenericName:          p.GenericName,
		Dosage:               p.Dosage,
		Manufacturer:         p.Manufacturer,
		RequiresPrescription: p.RequiresPrescription,
	}
}

func snapshotPharmacy(p domain.PharmacySnapshot) pharmacyRecord {
	return pharmacyRecord{ID: p.ID, Name: p.Name, City: p.City}
}

func scanCartItem(rows *sql.Rows) (domain.CartItem, error) {
	var (
		item         domain.CartItem
		amount       string
		currencyCode string
		productJSON  string
		pharmacyJSON string
		createdAt    time.Time
	)

	err := rows.Scan(&item.ID, &item.ProductID, &item.PharmacyID, &item.Quantity,
		&amount, &currencyCode, &productJSON, &pharmacyJSON, &createdAt)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("rows.Scan: %w", err)
	}

	parsedAmount, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("amount[%s] is not valid: %w", amount, err)
	}

	item.UnitPrice, err = domain.ParseMoney(parsedAmount, currencyCode)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("domain.ParseMoney: %w", err)
	}

	var product productRecord
	if err := json.Unmarshal([]byte(productJSON), &product); err != nil {
		return domain.CartItem{}, fmt.Errorf("json.Unmarshal product: %w", err)
	}
	item.Product = domain.ProductSnapshot{
		ID:                   product.ID,
		Name:                 product.Name,
		GenericName:          product.GenericName,
		Dosage:               product.Dosage,
		Manufacturer:         product.Manufacturer,
		RequiresPrescription: product.RequiresPrescription,
	}

	var pharmacy pharmacyRecord
	if err := json.Unmarshal([]byte(pharmacyJSON), &pharmacy); err != nil {
		return domain.CartItem{}, fmt.Errorf("json.Unmarshal pharmacy: %w", err)
	}
	item.Pharmacy = domain.PharmacySnapshot{ID: pharmacy.ID, Name: pharmacy.Name, City: pharmacy.City}

	item.CreatedAt = createdAt
	return item, nil
}
