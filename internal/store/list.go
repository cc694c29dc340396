package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jacksonlee411/mandi-console/internal/resource"
	"github.com/jacksonlee411/mandi-console/pkg/httperr"
)

type ListQuery struct {
	Resource resource.Resource
	Search   string
	FromDate string
	ToDate   string
	Page     int
	// PerPage < 0 returns every matching row.
	PerPage int
	// NotNull restricts the list to rows where this column is set.
	NotNull string
}

type ListResult struct {
	Rows  []map[string]any
	Total int64
}

type selectPlan struct {
	from    string
	selects []string
	where   []string
	args    []any
	order   string
}

func (p *selectPlan) arg(v any) string {
	p.args = append(p.args, v)
	return "$" + strconv.Itoa(len(p.args))
}

// List runs a filtered, sorted, paginated query. Dotted list_display
// entries ("mandi.mandi_name") are resolved through the resource's joins
// and come back under the dotted key.
func (s *Store) List(ctx context.Context, q ListQuery) (ListResult, error) {
	plan, err := s.planList(ctx, q)
	if err != nil {
		return ListResult{}, err
	}

	where := ""
	if len(plan.where) > 0 {
		where = "\nWHERE " + strings.Join(plan.where, " AND ")
	}

	var total int64
	countSQL := "SELECT count(*) FROM " + plan.from + where
	if err := s.db.QueryRow(ctx, countSQL, plan.args...).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("store: count %s: %w", q.Resource.Name, err)
	}

	sql := "SELECT " + strings.Join(plan.selects, ", ") + "\nFROM " + plan.from + where + "\nORDER BY " + plan.order
	args := plan.args
	if q.PerPage >= 0 {
		perPage := q.PerPage
		if perPage == 0 {
			perPage = 20
		}
		page := max(q.Page, 1)
		sql += fmt.Sprintf("\nLIMIT %d OFFSET %d", perPage, (page-1)*perPage)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return ListResult{}, fmt.Errorf("store: list %s: %w", q.Resource.Name, err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return ListResult{}, fmt.Errorf("store: list %s: %w", q.Resource.Name, err)
	}
	return ListResult{Rows: items, Total: total}, nil
}

func (s *Store) planList(ctx context.Context, q ListQuery) (*selectPlan, error) {
	r := q.Resource
	cols, err := s.Columns(ctx, r.Table)
	if err != nil {
		return nil, err
	}
	known := columnSet(cols)

	plan := &selectPlan{
		from:    ident(r.Table) + " AS t",
		selects: []string{"t.*"},
	}

	var searchable []string
	joined := map[string]bool{}
	for _, entry := range r.ListDisplay {
		rel, name, dotted := strings.Cut(entry, ".")
		if !dotted {
			if _, ok := known[entry]; ok {
				searchable = append(searchable, col("t", entry))
			}
			continue
		}
		j, ok := r.JoinFor(rel)
		if !ok {
			return nil, fmt.Errorf("store: %s: no join for %q", r.Name, rel)
		}
		alias := "j_" + rel
		if !joined[rel] {
			joined[rel] = true
			plan.from += fmt.Sprintf("\nLEFT JOIN %s AS %s ON %s = %s",
				ident(j.Table), pgx.Identifier{alias}.Sanitize(), col(alias, j.ForeignKey), col("t", j.LocalKey))
		}
		ref := col(alias, name)
		plan.selects = append(plan.selects, ref+" AS "+pgx.Identifier{entry}.Sanitize())
		searchable = append(searchable, ref)
	}

	if search := strings.TrimSpace(q.Search); search != "" && len(searchable) > 0 {
		p := plan.arg("%" + search + "%")
		ors := make([]string, 0, len(searchable))
		for _, ref := range searchable {
			ors = append(ors, "CAST("+ref+" AS TEXT) ILIKE "+p)
		}
		plan.where = append(plan.where, "("+strings.Join(ors, " OR ")+")")
	}

	dateField := r.DateField()
	if _, ok := known[dateField]; ok {
		if v := strings.TrimSpace(q.FromDate); v != "" {
			d, err := parseDate(v)
			if err != nil {
				return nil, err
			}
			plan.where = append(plan.where, "CAST("+col("t", dateField)+" AS DATE) >= "+plan.arg(d)+"::date")
		}
		if v := strings.TrimSpace(q.ToDate); v != "" {
			d, err := parseDate(v)
			if err != nil {
				return nil, err
			}
			plan.where = append(plan.where, "CAST("+col("t", dateField)+" AS DATE) <= "+plan.arg(d)+"::date")
		}
	}

	if q.NotNull != "" {
		if _, ok := known[q.NotNull]; ok {
			plan.where = append(plan.where, col("t", q.NotNull)+" IS NOT NULL")
		}
	}

	var order []string
	for _, c := range r.Sort {
		if _, ok := known[c.SortBy]; !ok {
			continue
		}
		dir := "ASC"
		if strings.EqualFold(c.SortOrder, "desc") {
			dir = "DESC"
		}
		order = append(order, col("t", c.SortBy)+" "+dir)
	}
	if len(order) == 0 {
		order = append(order, col("t", r.PrimaryKey()))
	}
	plan.order = strings.Join(order, ", ")
	return plan, nil
}

func parseDate(v string) (string, error) {
	d, err := time.Parse("2006-01-02", v)
	if err != nil {
		return "", httperr.BadRequestf("invalid date %q, expected YYYY-MM-DD", v)
	}
	return d.Format("2006-01-02"), nil
}
