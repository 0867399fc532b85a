package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-rewards-backend/internal/search"
)

// DefaultSuggestThreshold is the minimum similarity for a "did you mean" hint.
const DefaultSuggestThreshold = 0.3

var folder = cases.Fold()

// CanonicalCompanyName returns the lowercase canonical form used for catalog
// names and lookups.
func CanonicalCompanyName(name string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(name))
}

// Catalog is an immutable, case-insensitive view of the companies known at the
// start of a run.
type Catalog struct {
	byName  map[string]CompanyRecord
	names   *search.NameIndex
	suggest float64
}

// CatalogOption customizes a Catalog.
type CatalogOption func(*Catalog)

// WithSuggestThreshold sets the similarity needed before an unknown company
// error carries a suggestion. Values <= 0 disable suggestions.
func WithSuggestThreshold(th float64) CatalogOption {
	return func(c *Catalog) { c.suggest = th }
}

// NewCatalog snapshots records. Later duplicates of a folded name lose.
func NewCatalog(records []CompanyRecord, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		byName:  make(map[string]CompanyRecord, len(records)),
		suggest: DefaultSuggestThreshold,
	}
	names := make([]string, 0, len(records))
	for _, r := range records {
		key := folder.String(strings.TrimSpace(r.Name))
		if key == "" {
			continue
		}
		if _, dup := c.byName[key]; dup {
			continue
		}
		c.byName[key] = r
		names = append(names, CanonicalCompanyName(r.Name))
	}
	for _, o := range opts {
		o(c)
	}
	if c.suggest > 0 {
		c.names = search.NewNameIndex(names, search.IgnoreWords("ltd", "inc", "pvt", "llc", "co"))
	}
	return c
}

// Lookup resolves a company by name, ignoring case.
func (c *Catalog) Lookup(name string) (CompanyRecord, bool) {
	if c == nil {
		return CompanyRecord{}, false
	}
	r, ok := c.byName[folder.String(strings.TrimSpace(name))]
	return r, ok
}

// Len returns the number of companies in the snapshot.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byName)
}

func (c *Catalog) suggestion(name string) string {
	if c == nil || c.names == nil {
		return ""
	}
	s, ok := c.names.Suggest(name, c.suggest)
	if !ok {
		return ""
	}
	return fmt.Sprintf(" (did you mean '%s'?)", s)
}

// RowNumber is the user-visible row of raw row i.
func RowNumber(i int, r RawRow) int {
	if r.Line > 0 {
		return r.Line
	}
	return i + HeaderRows + 1
}

// Validate checks every row against catalog and converts them to coupons.
// All rows are checked before returning. Any problem yields a
// *ValidationError with every message and no coupons.
func Validate(rows []RawRow, catalog *Catalog) ([]ValidatedCoupon, error) {
	if len(rows) == 0 {
		return nil, ErrEmptySource
	}

	var msgs []string
	out := make([]ValidatedCoupon, 0, len(rows))

	for i, r := range rows {
		n := RowNumber(i, r)
		bad := false
		fail := func(format string, args ...any) {
			msgs = append(msgs, fmt.Sprintf("Row %d: ", n)+fmt.Sprintf(format, args...))
			bad = true
		}

		if r.Code == "" {
			fail("code is required")
		}

		mrp, mrpErr := strconv.ParseFloat(r.MRP, 64)
		mrpOK := mrpErr == nil && !math.IsNaN(mrp) && !math.IsInf(mrp, 0) && mrp >= 1
		if !mrpOK {
			fail("mrp must be a number >= 1")
		}

		var company CompanyRecord
		companyOK := false
		switch {
		case r.Company == "":
			fail("company is required")
		default:
			company, companyOK = catalog.Lookup(r.Company)
			if !companyOK {
				fail("company '%s' does not exist%s", CanonicalCompanyName(r.Company), catalog.suggestion(r.Company))
			}
		}

		// an override that is present must at least be a number; zero or
		// negative ones still fall back to the derived value
		pointsOK := r.Points == "" || isNumber(r.Points)
		if !pointsOK {
			fail("points must be a number")
		}

		if !mrpOK || !companyOK || !pointsOK {
			continue
		}
		points := Points(r.Points, mrp, company.ConversionFactor)
		if points < 1 {
			fail("points must be >= 1 (got %d from mrp %s and conversion factor %s)",
				points, formatNumber(mrp), formatNumber(company.ConversionFactor))
		}
		if bad {
			continue
		}
		out = append(out, ValidatedCoupon{
			Row:       n,
			Code:      r.Code,
			MRP:       mrp,
			CompanyID: company.ID,
			Points:    points,
		})
	}

	if len(msgs) > 0 {
		return nil, &ValidationError{Messages: msgs}
	}
	return out, nil
}

// Points returns the override when it parses to a positive number, otherwise
// round(mrp * factor / 100). Rounding happens once, half away from zero, so
// whole overrides are kept as given and fractional ones are rounded. Validate
// rejects non-numeric overrides before this is reached.
func Points(override string, mrp, factor float64) int {
	if override != "" {
		if p, err := strconv.ParseFloat(override, 64); err == nil && p > 0 && !math.IsInf(p, 0) {
			return int(math.Round(p))
		}
	}
	return int(math.Round(mrp * factor / 100))
}

func isNumber(s string) bool {
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}

func formatNumber(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
