package store

import (
	"fmt"
	"strings"
)

const decisionColumns = `id, decision, created_at`

// placeholderFunc renders the n-th (1-based) bind parameter for a dialect.
type placeholderFunc func(n int) string

func sqlitePlaceholder(int) string { return "?" }

func postgresPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// decisionWhere builds the WHERE clause for a filter. Times are passed
// through toTime so each dialect can bind its own representation.
func decisionWhere(filter DecisionFilter, ph placeholderFunc, toTime func(t any) any) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.Replace(cond, "?", ph(len(args)), 1))
	}

	if filter.LossType != "" {
		add("loss_type = ?", string(filter.LossType))
	}
	if filter.VIN != "" {
		add("vin = ?", strings.ToUpper(filter.VIN))
	}
	if filter.TotalLoss != nil {
		add("is_total_loss = ?", *filter.TotalLoss)
	}
	if !filter.Since.IsZero() {
		add("created_at >= ?", toTime(filter.Since))
	}
	if !filter.Until.IsZero() {
		add("created_at < ?", toTime(filter.Until))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// pageClause appends ORDER BY, LIMIT and OFFSET.
func pageClause(filter DecisionFilter, limit int, ph placeholderFunc, args []any) (string, []any) {
	args = append(args, limit)
	q := " ORDER BY created_at DESC, id DESC LIMIT " + ph(len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		q += " OFFSET " + ph(len(args))
	}
	return q, args
}
