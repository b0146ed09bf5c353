// Package ledgerquery turns listing filters and pagination options into a
// bounded, owner-scoped store query, and derives page metadata from the result.
package ledgerquery

import (
	"fmt"
	"strings"
	"time"

	"github.com/bytebank-ledger/internal/domain/money"
	"github.com/bytebank-ledger/internal/domain/shared"
	"github.com/bytebank-ledger/internal/domain/transaction"
	"github.com/google/uuid"
)

const (
	// DefaultPageSize applies to filtered listings
	DefaultPageSize = 20
	// DefaultListingPageSize applies when every filter is at its default
	DefaultListingPageSize = 10
	// MaxPageSize bounds any single window
	MaxPageSize = 100

	dateLayout = "2006-01-02"
)

// Window is an inclusive row range
type Window struct {
	From     int
	To       int
	PageSize int
}

// Limit is the number of rows the window spans
func (w Window) Limit() int {
	return w.To - w.From + 1
}

// builder accumulates AND-ed conditions with positional arguments
type builder struct {
	conditions []string
	args       []any
}

func (b *builder) add(format string, arg any) {
	b.args = append(b.args, arg)
	b.conditions = append(b.conditions, fmt.Sprintf(format, len(b.args)))
}

// Build translates the caller's filters and pagination into a Query. The owner
// predicate is always the first condition.
func Build(userID uuid.UUID, filters transaction.FilterOptions, page transaction.PaginationOptions) (transaction.Query, Window, error) {
	b := &builder{}
	b.add("user_id = $%d", userID)

	if v := strings.TrimSpace(filters.DateFrom); v != "" {
		from, err := parseDay(v, "date_from")
		if err != nil {
			return transaction.Query{}, Window{}, err
		}
		b.add("created_at >= $%d", from)
	}
	if v := strings.TrimSpace(filters.DateTo); v != "" {
		to, err := parseDay(v, "date_to")
		if err != nil {
			return transaction.Query{}, Window{}, err
		}
		b.add("created_at <= $%d", to.Add(24*time.Hour-time.Microsecond))
	}

	if v, ok := enumValue(filters.TransactionType); ok {
		if !transaction.Type(v).Valid() {
			return transaction.Query{}, Window{}, shared.NewValidationError("transaction_type", "unknown transaction type "+v)
		}
		b.add("transaction_type = $%d", v)
	}
	if v, ok := enumValue(filters.Status); ok {
		if !transaction.Status(v).Valid() {
			return transaction.Query{}, Window{}, shared.NewValidationError("status", "unknown status "+v)
		}
		b.add("status = $%d", v)
	}
	if v, ok := enumValue(filters.Category); ok {
		if !transaction.Category(v).Valid() {
			return transaction.Query{}, Window{}, shared.NewValidationError("category", "unknown category "+v)
		}
		b.add("category = $%d", v)
	}

	if v := strings.TrimSpace(filters.MinAmount); v != "" {
		minor, err := money.ParseLocaleCurrencyStrict(v)
		if err != nil {
			return transaction.Query{}, Window{}, shared.NewValidationError("min_amount", err.Error())
		}
		b.add("amount >= $%d", minor)
	}
	if v := strings.TrimSpace(filters.MaxAmount); v != "" {
		minor, err := money.ParseLocaleCurrencyStrict(v)
		if err != nil {
			return transaction.Query{}, Window{}, shared.NewValidationError("max_amount", err.Error())
		}
		b.add("amount <= $%d", minor)
	}

	if v := strings.TrimSpace(filters.Description); v != "" {
		b.add(`description ILIKE '%%' || $%d || '%%' ESCAPE '\'`, escapeLike(v))
	}
	if v := strings.TrimSpace(filters.SenderName); v != "" {
		b.add(`sender_name ILIKE '%%' || $%d || '%%' ESCAPE '\'`, escapeLike(v))
	}

	window := ResolveWindow(filters.IsDefault(), page)
	return transaction.Query{
		Conditions: b.conditions,
		Args:       b.args,
		Offset:     window.From,
		Limit:      window.Limit(),
	}, window, nil
}

// ResolveWindow uses explicit From/To verbatim, otherwise derives the range
// from the 1-indexed page.
func ResolveWindow(defaultFilters bool, page transaction.PaginationOptions) Window {
	size := page.PageSize
	if size <= 0 {
		size = DefaultPageSize
		if defaultFilters {
			size = DefaultListingPageSize
		}
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	if page.From != nil && page.To != nil && *page.From >= 0 && *page.To >= *page.From {
		from, to := *page.From, *page.To
		if to-from+1 > MaxPageSize {
			to = from + MaxPageSize - 1
		}
		return Window{From: from, To: to, PageSize: to - from + 1}
	}

	p := page.Page
	if p < 1 {
		p = 1
	}
	from := (p - 1) * size
	return Window{From: from, To: from + size - 1, PageSize: size}
}

// Paginate derives page metadata. total is nil when no exact count was obtained,
// in which case a full window implies another page may follow.
func Paginate(w Window, rows int, total *int64) transaction.Pagination {
	p := transaction.Pagination{
		Page:            w.From/w.PageSize + 1,
		PageSize:        w.PageSize,
		Total:           total,
		From:            w.From,
		To:              w.To,
		HasPreviousPage: w.From > 0,
	}
	if total != nil {
		p.HasNextPage = int64(w.To) < *total-1
	} else {
		p.HasNextPage = rows == w.PageSize
	}
	if last := w.From + rows - 1; last < w.To {
		p.To = last
	}
	return p
}

func parseDay(v, field string) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, shared.NewValidationError(field, "expected a date formatted as YYYY-MM-DD")
	}
	return day, nil
}

func enumValue(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" || v == transaction.FilterAll {
		return "", false
	}
	return v, true
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(v string) string {
	return likeEscaper.Replace(v)
}
