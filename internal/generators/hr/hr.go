// Package hr seeds an HR system with employees.
package hr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"demopilot/internal/generator"
	"demopilot/internal/host"
)

const (
	Slug      = "hr"
	Employees = "employees"
	table     = "hr_employees"
)

var (
	departments     = []string{"Engineering", "Sales", "Marketing", "Finance", "Human Resources", "Support", "Operations"}
	employmentTypes = []string{"permanent", "parttime", "contract", "temporary", "trainee"}
	payTypes        = []string{"hourly", "monthly", "yearly"}
)

var Tables = []host.Table{
	{Name: table, Columns: []host.Column{
		{Name: "first_name", Type: host.Text},
		{Name: "last_name", Type: host.Text},
		{Name: "email", Type: host.Text},
		{Name: "phone", Type: host.Text},
		{Name: "designation", Type: host.Text},
		{Name: "department", Type: host.Text},
		{Name: "location", Type: host.Text},
		{Name: "hiring_date", Type: host.Date},
		{Name: "pay_rate", Type: host.Money},
		{Name: "pay_type", Type: host.Text},
		{Name: "type", Type: host.Text},
		{Name: "status", Type: host.Text},
	}},
}

type Generator struct {
	generator.Base
	Store *host.Store
	Now   func() time.Time

	mu    sync.Mutex
	faker *gofakeit.Faker
}

func New(store *host.Store, seed uint64) *Generator {
	return &Generator{
		Base:  generator.NewBase(Slug, "HR", "Generate demo employees with departments, designations and pay rates.", map[string]string{Employees: "Employees"}),
		Store: store,
		Now:   time.Now,
		faker: gofakeit.New(seed),
	}
}

func (g *Generator) IsActive(ctx context.Context) bool {
	return g.Store != nil && g.Store.HasTables(ctx, host.Names(Tables)...)
}

// Generate accepts an optional "department" arg that pins every employee of
// the call to one department.
func (g *Generator) Generate(ctx context.Context, kind string, count int, args generator.Args) ([]int64, error) {
	if err := g.ValidateArgs(kind, count); err != nil {
		return nil, err
	}
	if err := generator.ValidateDependencies(ctx, g); err != nil {
		return nil, err
	}
	department := args.String("department")
	return g.Each(ctx, count, func(ctx context.Context, _ int) (int64, error) {
		return g.createEmployee(ctx, department)
	}), nil
}

func (g *Generator) createEmployee(ctx context.Context, department string) (int64, error) {
	g.mu.Lock()
	now := g.Now()
	first, last := g.faker.FirstName(), g.faker.LastName()
	if department == "" {
		department = g.faker.RandomString(departments)
	}
	payType := g.faker.RandomString(payTypes)
	var rate float64
	switch payType {
	case "hourly":
		rate = g.faker.Price(15, 90)
	case "monthly":
		rate = g.faker.Price(2500, 12000)
	default:
		rate = g.faker.Price(30000, 150000)
	}
	row := map[string]any{
		"first_name":  first,
		"last_name":   last,
		"email":       strings.ToLower(fmt.Sprintf("%s.%s.%d@example.com", first, last, g.faker.Number(1, 99999))),
		"phone":       g.faker.Phone(),
		"designation": g.faker.JobTitle(),
		"department":  department,
		"location":    g.faker.City(),
		"hiring_date": g.faker.DateRange(now.AddDate(-5, 0, 0), now).Format("2006-01-02"),
		"pay_rate":    rate,
		"pay_type":    payType,
		"type":        g.faker.RandomString(employmentTypes),
		"status":      "active",
	}
	g.mu.Unlock()
	id, err := g.Store.Insert(ctx, table, row)
	if err != nil {
		return 0, fmt.Errorf("create employee %s %s: %w", first, last, err)
	}
	return id, nil
}

func (g *Generator) Cleanup(ctx context.Context, kind string, ids []int64) error {
	_, err := g.CleanupReport(ctx, kind, ids)
	return err
}

func (g *Generator) CleanupReport(ctx context.Context, kind string, ids []int64) ([]int64, error) {
	if !g.Supports(kind) {
		return nil, generator.Failf(generator.CodeInvalidKind, "Invalid data type: %s", kind)
	}
	return g.EachDelete(ctx, kind, ids, func(ctx context.Context, id int64) error {
		if err := g.Store.Delete(ctx, table, id); err != nil && !errors.Is(err, host.ErrNotFound) {
			return err
		}
		return nil
	}), nil
}
