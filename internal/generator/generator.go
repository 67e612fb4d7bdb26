// Package generator defines the contract every demo-data generator satisfies
// and the helpers shared by the concrete implementations.
package generator

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"demopilot/internal/domain"
)

// Generator produces and removes demo records for one target system.
//
// IsActive is consulted on every call and must not be cached: the target
// system can appear or disappear between requests. Generate returns the ids it
// managed to create, which may be fewer than count when individual records
// fail; a returned error aborts the whole batch. Cleanup is best effort and
// returns nil once every id has been attempted.
type Generator interface {
	Slug() string
	Name() string
	Description() string
	Kinds() map[string]string
	IsActive(ctx context.Context) bool
	Generate(ctx context.Context, kind string, count int, args Args) ([]int64, error)
	Cleanup(ctx context.Context, kind string, ids []int64) error
	DefaultBatchSize() int
}

// ReportingCleaner is implemented by generators that can tell which ids they
// failed to delete.
type ReportingCleaner interface {
	CleanupReport(ctx context.Context, kind string, ids []int64) (failed []int64, err error)
}

// Iconer is implemented by generators that ship an icon URL.
type Iconer interface {
	Icon() string
}

// Logger receives generator activity. The events journal satisfies it.
type Logger interface {
	Log(ctx context.Context, message, level, generator string)
}

// Failure codes.
const (
	CodeInvalidKind       = "invalid_kind"
	CodeInvalidCount      = "invalid_count"
	CodeLimitExceeded     = "limit_exceeded"
	CodeDependencyMissing = "dependency_missing"
	CodeStorage           = "storage"
)

// Failure is a hard generator failure for a whole call.
type Failure struct {
	Code    string
	Message string
}

func (f *Failure) Error() string { return f.Message }

// Failf builds a Failure with a formatted message.
func Failf(code, format string, args ...any) *Failure {
	return &Failure{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ValidateDependencies returns nil iff g is active.
func ValidateDependencies(ctx context.Context, g Generator) error {
	if g.IsActive(ctx) {
		return nil
	}
	return Failf(CodeDependencyMissing, "%s is not active. Please activate it before generating data.", g.Name())
}

// Info describes g for listings. Stats are filled in by the caller.
func Info(ctx context.Context, g Generator) domain.GeneratorInfo {
	info := domain.GeneratorInfo{
		Slug:           g.Slug(),
		Name:           g.Name(),
		Description:    g.Description(),
		IsActive:       g.IsActive(ctx),
		SupportedKinds: g.Kinds(),
	}
	if ic, ok := g.(Iconer); ok {
		info.Icon = ic.Icon()
	}
	return info
}

// Label turns a kind slug such as "purchase_orders" into "Purchase Orders".
func Label(slug string) string {
	return cases.Title(language.English).String(strings.NewReplacer("_", " ", "-", " ").Replace(slug))
}

// Args carries free-form generation arguments.
type Args map[string]any

// Int reads key as a positive integer. Integral JSON numbers and numeric
// strings are accepted.
func (a Args) Int(key string) (int, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, false
	}
	var n int
	switch t := v.(type) {
	case int:
		n = t
	case int64:
		n = int(t)
	case float64:
		if t != math.Trunc(t) || t < 1 || t >= math.MaxInt {
			return 0, false
		}
		n = int(t)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if n < 1 {
		return 0, false
	}
	return n, true
}

// String reads key as a string.
func (a Args) String(key string) string {
	if s, ok := a[key].(string); ok {
		return s
	}
	return ""
}

// Clone returns a shallow copy so hooks can rewrite args safely.
func (a Args) Clone() Args {
	out := make(Args, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
