// Package budget holds the typed records exchanged with the budgeting
// service and a thin REST client for fetching them. All amounts are in
// milliunits (1000 = one major currency unit) so money arithmetic stays
// integral.
package budget

import "time"

// Transaction is an immutable snapshot of a budgeting-service
// transaction. Date carries no time-of-day component.
type Transaction struct {
	ID         string
	Date       time.Time
	Amount     int64 // milliunits, negative = outflow
	AccountID  string
	PayeeID    *string
	PayeeName  string
	CategoryID *string
	Memo       string
	Deleted    bool
}

// Categorized reports whether the transaction has a category assigned.
func (t Transaction) Categorized() bool {
	return t.CategoryID != nil && *t.CategoryID != ""
}

// Account is an immutable account snapshot.
type Account struct {
	ID   string
	Name string
}

// Category is an immutable category snapshot.
type Category struct {
	ID   string
	Name string
}

// Payee is the raw payee record as the budgeting service reports it,
// before any local rule state is attached.
type Payee struct {
	ID   string
	Name string
}

// DateLayout is the calendar-date wire format used by the budgeting
// service.
const DateLayout = "2006-01-02"

// ParseDate parses a service calendar date. The zero time signals a
// malformed date; callers skip such records rather than failing the
// whole batch.
func ParseDate(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
