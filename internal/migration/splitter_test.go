package migration

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/example/schema-migrator/internal/database"
)

func TestSplitStatements(t *testing.T) {
	mysql := SplitOptionsFor(database.MySQL)
	postgres := SplitOptionsFor(database.Postgres)
	sqlite := SplitOptionsFor(database.SQLite)

	tests := []struct {
		name string
		body string
		opts SplitOptions
		want []string
	}{
		{
			name: "simple statements",
			body: "CREATE TABLE a (id INT);\nCREATE TABLE b (id INT);\n",
			opts: sqlite,
			want: []string{"CREATE TABLE a (id INT)", "CREATE TABLE b (id INT)"},
		},
		{
			name: "last statement without delimiter",
			body: "SELECT 1;\nSELECT 2",
			opts: sqlite,
			want: []string{"SELECT 1", "SELECT 2"},
		},
		{
			name: "delimiters inside quotes",
			body: "INSERT INTO t VALUES ('a;b', \"c;d\");\nINSERT INTO t VALUES ('it''s; fine');",
			opts: sqlite,
			want: []string{"INSERT INTO t VALUES ('a;b', \"c;d\")", "INSERT INTO t VALUES ('it''s; fine')"},
		},
		{
			name: "line comments dropped",
			body: "-- header; with semicolon\nCREATE TABLE a (id INT); -- trailing\n-- footer\n",
			opts: sqlite,
			want: []string{"CREATE TABLE a (id INT)"},
		},
		{
			name: "block comments kept with their statement",
			body: "/* create; things */\nCREATE TABLE a (id INT);\n/* only a comment */",
			opts: sqlite,
			want: []string{"/* create; things */\nCREATE TABLE a (id INT)"},
		},
		{
			name: "mysql hash comments and backslash escapes",
			body: "# setup\nINSERT INTO t VALUES ('a\\';b');\nSELECT `weird;col` FROM t;",
			opts: mysql,
			want: []string{"INSERT INTO t VALUES ('a\\';b')", "SELECT `weird;col` FROM t"},
		},
		{
			name: "mysql executable comment is a statement",
			body: "/*!40101 SET NAMES utf8 */;\nCREATE TABLE a (id INT);",
			opts: mysql,
			want: []string{"/*!40101 SET NAMES utf8 */", "CREATE TABLE a (id INT)"},
		},
		{
			name: "mysql delimiter directive",
			body: "CREATE TABLE a (id INT);\n" +
				"DELIMITER //\n" +
				"CREATE PROCEDURE p()\nBEGIN\n  SELECT 1;\n  SELECT 2;\nEND //\n" +
				"DELIMITER ;\n" +
				"CALL p();\n",
			opts: mysql,
			want: []string{
				"CREATE TABLE a (id INT)",
				"CREATE PROCEDURE p()\nBEGIN\n  SELECT 1;\n  SELECT 2;\nEND",
				"CALL p()",
			},
		},
		{
			name: "delimiter column inside a statement",
			body: "CREATE TABLE t (\n  id INT,\n  delimiter VARCHAR(10)\n);\nINSERT INTO t VALUES (1, 'x');\n",
			opts: mysql,
			want: []string{
				"CREATE TABLE t (\n  id INT,\n  delimiter VARCHAR(10)\n)",
				"INSERT INTO t VALUES (1, 'x')",
			},
		},
		{
			name: "postgres dollar quoting",
			body: "CREATE FUNCTION f() RETURNS int AS $$ SELECT 1; $$ LANGUAGE sql;\n" +
				"DO $body$ BEGIN PERFORM 1; END $body$;\n" +
				"SELECT $1::int;",
			opts: postgres,
			want: []string{
				"CREATE FUNCTION f() RETURNS int AS $$ SELECT 1; $$ LANGUAGE sql",
				"DO $body$ BEGIN PERFORM 1; END $body$",
				"SELECT $1::int",
			},
		},
		{
			name: "hash is not a comment outside mysql",
			body: "SELECT 5 # 3;",
			opts: postgres,
			want: []string{"SELECT 5 # 3"},
		},
		{
			name: "empty statements skipped",
			body: ";;\n  ;\nSELECT 1;;",
			opts: sqlite,
			want: []string{"SELECT 1"},
		},
		{
			name: "only comments",
			body: "-- one\n/* two */\n",
			opts: sqlite,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitStatements(tt.body, tt.opts)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("SplitStatements() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
