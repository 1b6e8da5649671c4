package sink

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/ghalamif/AegisWatt/internal/domain"
	"github.com/ghalamif/AegisWatt/internal/ports"
)

const eventColumns = "(run_id, node_id, kind, energy_ws, budget_ws, detail, at)"

// JournalSink appends node lifecycle events to a SQL table.
type JournalSink struct {
	db        *sql.DB
	tableName string
	driver    string
}

// NewJournalSink wraps an already opened database. driver selects the
// placeholder style: "postgres" uses $n, anything else uses ?.
func NewJournalSink(db *sql.DB, driver, table string) *JournalSink {
	if table == "" {
		table = DefaultTable
	}
	return &JournalSink{db: db, tableName: table, driver: driver}
}

func (j *JournalSink) Name() string { return "journal-" + j.driver }

func (j *JournalSink) WriteBatch(events []*domain.NodeEvent) error {
	if len(events) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(j.tableName)
	b.WriteString(" ")
	b.WriteString(eventColumns)
	b.WriteString(" VALUES ")

	args := make([]any, 0, len(events)*7)
	for i, ev := range events {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?,?,?,?,?,?,?)")
		args = append(args,
			ev.RunID,
			string(ev.Node),
			string(ev.Kind),
			ev.Energy,
			ev.Budget,
			ev.Detail,
			ev.At.UTC(),
		)
	}

	query := b.String()
	if j.driver == "postgres" {
		query = Rebind(query)
	}
	if _, err := j.db.Exec(query, args...); err != nil {
		return fmt.Errorf("insert %d events: %w", len(events), err)
	}
	return nil
}

// Rebind rewrites ? placeholders to $1..$n.
func Rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ ports.EventSink = (*JournalSink)(nil)
