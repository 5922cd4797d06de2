// Package sqlio streams batches from and into SQL databases through
// database/sql. Supported drivers: sqlite (modernc), postgres (lib/pq),
// mysql and sqlserver.
package sqlio

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

type dialect struct {
	driver      string
	quote       func(string) string
	placeholder func(i int) string
	types       map[etl.Kind]string
	createTable func(table, cols string) string
}

func ansiQuote(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

func createIfNotExists(table, cols string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, cols)
}

var dialects = map[string]dialect{
	"sqlite": {
		driver:      "sqlite",
		quote:       ansiQuote,
		placeholder: func(int) string { return "?" },
		types:       map[etl.Kind]string{etl.KindBool: "BOOLEAN", etl.KindInt: "INTEGER", etl.KindFloat: "REAL", etl.KindString: "TEXT"},
		createTable: createIfNotExists,
	},
	"postgres": {
		driver:      "postgres",
		quote:       ansiQuote,
		placeholder: func(i int) string { return "$" + strconv.Itoa(i) },
		types:       map[etl.Kind]string{etl.KindBool: "BOOLEAN", etl.KindInt: "BIGINT", etl.KindFloat: "DOUBLE PRECISION", etl.KindString: "TEXT"},
		createTable: createIfNotExists,
	},
	"mysql": {
		driver:      "mysql",
		quote:       func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
		placeholder: func(int) string { return "?" },
		types:       map[etl.Kind]string{etl.KindBool: "BOOLEAN", etl.KindInt: "BIGINT", etl.KindFloat: "DOUBLE", etl.KindString: "TEXT"},
		createTable: createIfNotExists,
	},
	"sqlserver": {
		driver:      "sqlserver",
		quote:       func(s string) string { return "[" + strings.ReplaceAll(s, "]", "]]") + "]" },
		placeholder: func(i int) string { return "@p" + strconv.Itoa(i) },
		types:       map[etl.Kind]string{etl.KindBool: "BIT", etl.KindInt: "BIGINT", etl.KindFloat: "FLOAT", etl.KindString: "NVARCHAR(MAX)"},
		createTable: func(table, cols string) string {
			return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)",
				strings.ReplaceAll(table, "'", "''"), table, cols)
		},
	},
}

func lookup(driver string) (dialect, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		return dialects["sqlite"], nil
	case "postgres", "postgresql", "pg":
		return dialects["postgres"], nil
	case "mysql", "mariadb":
		return dialects["mysql"], nil
	case "sqlserver", "mssql":
		return dialects["sqlserver"], nil
	}
	return dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
}

func open(d dialect, dsn string) (*sql.DB, error) {
	if d.driver == "sqlite" && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver, err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)
	return db, nil
}

// kindOf maps a declared column type to a Kind; ok is false when the
// declaration says nothing useful and values must decide.
func kindOf(dbType string) (etl.Kind, bool) {
	t := strings.ToUpper(dbType)
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	switch strings.TrimSpace(t) {
	case "":
		return etl.KindInvalid, false
	case "BOOL", "BOOLEAN", "BIT":
		return etl.KindBool, true
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "MEDIUMINT", "INT2", "INT4", "INT8", "SERIAL", "BIGSERIAL":
		return etl.KindInt, true
	case "REAL", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION", "NUMERIC", "DECIMAL", "MONEY":
		return etl.KindFloat, true
	}
	return etl.KindString, true
}

// kindOfValue infers a Kind from a scanned value.
func kindOfValue(v any) etl.Kind {
	switch v.(type) {
	case int64, int32, int:
		return etl.KindInt
	case float64, float32:
		return etl.KindFloat
	case bool:
		return etl.KindBool
	case nil:
		return etl.KindInvalid
	}
	return etl.KindString
}

// convert maps a scanned driver value onto the column kind.
func convert(k etl.Kind, v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		if k == etl.KindString {
			return string(t), nil
		}
		return etl.ParseCell(k, string(t))
	case time.Time:
		if k != etl.KindString {
			return nil, fmt.Errorf("time value in %s column", k)
		}
		return t.Format(time.RFC3339Nano), nil
	case int64:
		if k == etl.KindBool {
			return t != 0, nil
		}
	case string:
		if k != etl.KindString {
			return etl.ParseCell(k, t)
		}
	}
	return v, nil
}
