// Package shop seeds a storefront: products, customers and orders.
package shop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"demopilot/internal/domain"
	"demopilot/internal/generator"
	"demopilot/internal/host"
)

const Slug = "shop"

// Kinds.
const (
	Products  = "products"
	Customers = "customers"
	Orders    = "orders"
)

var orderStatuses = []string{"pending", "processing", "on-hold", "completed", "cancelled", "refunded"}

// Tables the generator writes to. All of them must exist for the generator to
// be active.
var Tables = []host.Table{
	{Name: "shop_products", Columns: []host.Column{
		{Name: "name", Type: host.Text},
		{Name: "sku", Type: host.Text},
		{Name: "price", Type: host.Money},
		{Name: "stock", Type: host.Integer},
		{Name: "status", Type: host.Text},
		{Name: "created_at", Type: host.Date},
	}},
	{Name: "shop_customers", Columns: []host.Column{
		{Name: "first_name", Type: host.Text},
		{Name: "last_name", Type: host.Text},
		{Name: "email", Type: host.Text},
		{Name: "phone", Type: host.Text},
		{Name: "address", Type: host.Text},
		{Name: "city", Type: host.Text},
		{Name: "state", Type: host.Text},
		{Name: "postcode", Type: host.Text},
		{Name: "created_at", Type: host.Date},
	}},
	{Name: "shop_orders", Columns: []host.Column{
		{Name: "customer_id", Type: host.Integer, Null: true},
		{Name: "product_id", Type: host.Integer},
		{Name: "quantity", Type: host.Integer},
		{Name: "total", Type: host.Money},
		{Name: "status", Type: host.Text},
		{Name: "created_at", Type: host.Date},
	}},
}

var tableFor = map[string]string{
	Products:  "shop_products",
	Customers: "shop_customers",
	Orders:    "shop_orders",
}

type Generator struct {
	generator.Base
	Store *host.Store
	Now   func() time.Time

	mu    sync.Mutex
	faker *gofakeit.Faker
}

// New builds the generator. A zero seed picks a random one.
func New(store *host.Store, seed uint64) *Generator {
	return &Generator{
		Base: generator.NewBase(Slug, "Shop", "Generate demo products, customers and orders for the storefront.", map[string]string{
			Products:  "Products",
			Customers: "Customers",
			Orders:    "Orders",
		}),
		Store: store,
		Now:   time.Now,
		faker: gofakeit.New(seed),
	}
}

func (g *Generator) Icon() string { return "cart" }

func (g *Generator) IsActive(ctx context.Context) bool {
	return g.Store != nil && g.Store.HasTables(ctx, host.Names(Tables)...)
}

func (g *Generator) Generate(ctx context.Context, kind string, count int, args generator.Args) ([]int64, error) {
	if err := g.ValidateArgs(kind, count); err != nil {
		return nil, err
	}
	if err := generator.ValidateDependencies(ctx, g); err != nil {
		return nil, err
	}
	switch kind {
	case Products:
		minPrice, ok := args.Int("min_price")
		if !ok {
			minPrice = 5
		}
		maxPrice, ok := args.Int("max_price")
		if !ok || maxPrice < minPrice {
			maxPrice = minPrice + 495
		}
		return g.Each(ctx, count, func(ctx context.Context, _ int) (int64, error) {
			return g.createProduct(ctx, float64(minPrice), float64(maxPrice))
		}), nil
	case Customers:
		return g.Each(ctx, count, func(ctx context.Context, _ int) (int64, error) {
			return g.createCustomer(ctx)
		}), nil
	default:
		products, err := g.Store.RandomIDs(ctx, tableFor[Products], 50)
		if err != nil {
			return nil, generator.Failf(generator.CodeStorage, "load products: %v", err)
		}
		if len(products) == 0 {
			g.Log(ctx, "No products found. Please generate products first.", domain.LevelWarning)
			return []int64{}, nil
		}
		customers, err := g.Store.RandomIDs(ctx, tableFor[Customers], 50)
		if err != nil {
			return nil, generator.Failf(generator.CodeStorage, "load customers: %v", err)
		}
		status := args.String("status")
		return g.Each(ctx, count, func(ctx context.Context, _ int) (int64, error) {
			return g.createOrder(ctx, products, customers, status)
		}), nil
	}
}

func (g *Generator) createdAt() string {
	now := g.Now()
	return g.faker.DateRange(now.AddDate(-1, 0, 0), now).Format("2006-01-02")
}

func (g *Generator) createProduct(ctx context.Context, minPrice, maxPrice float64) (int64, error) {
	g.mu.Lock()
	name := g.faker.ProductName()
	row := map[string]any{
		"name":       name,
		"sku":        fmt.Sprintf("DEMO-%s-%04d", strings.ToUpper(g.faker.LetterN(3)), g.faker.Number(0, 9999)),
		"price":      g.faker.Price(minPrice, maxPrice),
		"stock":      g.faker.Number(0, 200),
		"status":     g.faker.RandomString([]string{"publish", "publish", "publish", "draft"}),
		"created_at": g.createdAt(),
	}
	g.mu.Unlock()
	id, err := g.Store.Insert(ctx, tableFor[Products], row)
	if err != nil {
		return 0, fmt.Errorf("create product %q: %w", name, err)
	}
	return id, nil
}

func (g *Generator) createCustomer(ctx context.Context) (int64, error) {
	g.mu.Lock()
	first, last := g.faker.FirstName(), g.faker.LastName()
	row := map[string]any{
		"first_name": first,
		"last_name":  last,
		"email":      strings.ToLower(fmt.Sprintf("%s.%s.%d@example.com", first, last, g.faker.Number(1, 99999))),
		"phone":      g.faker.Phone(),
		"address":    g.faker.Street(),
		"city":       g.faker.City(),
		"state":      g.faker.StateAbr(),
		"postcode":   g.faker.Zip(),
		"created_at": g.createdAt(),
	}
	g.mu.Unlock()
	id, err := g.Store.Insert(ctx, tableFor[Customers], row)
	if err != nil {
		return 0, fmt.Errorf("create customer %s %s: %w", first, last, err)
	}
	return id, nil
}

func (g *Generator) createOrder(ctx context.Context, products, customers []int64, status string) (int64, error) {
	g.mu.Lock()
	row := map[string]any{
		"product_id": products[g.faker.Number(0, len(products)-1)],
		"quantity":   g.faker.Number(1, 5),
		"created_at": g.createdAt(),
	}
	var customer any
	// a quarter of the orders are guest checkouts
	if len(customers) > 0 && g.faker.Number(1, 4) > 1 {
		customer = customers[g.faker.Number(0, len(customers)-1)]
	}
	row["customer_id"] = customer
	if status == "" {
		status = g.faker.RandomString(orderStatuses)
	}
	row["status"] = status
	row["total"] = g.faker.Price(10, 1000)
	g.mu.Unlock()
	id, err := g.Store.Insert(ctx, tableFor[Orders], row)
	if err != nil {
		return 0, fmt.Errorf("create order: %w", err)
	}
	return id, nil
}

func (g *Generator) Cleanup(ctx context.Context, kind string, ids []int64) error {
	_, err := g.CleanupReport(ctx, kind, ids)
	return err
}

// CleanupReport deletes the rows and returns the ids it could not delete.
// Rows already gone count as deleted.
func (g *Generator) CleanupReport(ctx context.Context, kind string, ids []int64) ([]int64, error) {
	table, ok := tableFor[kind]
	if !ok {
		return nil, generator.Failf(generator.CodeInvalidKind, "Invalid data type: %s", kind)
	}
	return g.EachDelete(ctx, kind, ids, func(ctx context.Context, id int64) error {
		return ignoreMissing(g.Store.Delete(ctx, table, id))
	}), nil
}

func ignoreMissing(err error) error {
	if err != nil && !errors.Is(err, host.ErrNotFound) {
		return err
	}
	return nil
}
