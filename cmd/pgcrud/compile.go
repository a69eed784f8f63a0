package pgcrud

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/edgeflare/pgcrud/pkg/query"
	"github.com/edgeflare/pgcrud/pkg/rest"
	"github.com/mitchellh/mapstructure"
	pg_query "github.com/pganalyze/pg_query_go/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var compileCmd = &cobra.Command{
	Use:   "compile QUERY",
	Short: "Print the SQL a request query compiles to",
	Long: `Compiles a request query string against an entity schema file and prints
the SQL statement and its arguments without touching a database.

  pgcrud compile --schema users.yaml 'filter[0][field]=age&filter[0][operator]=$gte&filter[0][value]=18'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		schemaFile, _ := f.GetString("schema")
		stmt, _ := f.GetString("statement")
		check, _ := f.GetBool("check")

		s, err := loadSchemaFile(schemaFile)
		if err != nil {
			return err
		}
		out, err := compileQuery(s, args[0], stmt)
		if err != nil {
			return err
		}
		if check {
			if s.Dialect() != query.DialectPostgres {
				return errors.New("--check requires the postgres dialect")
			}
			if out.Fingerprint, err = pg_query.Fingerprint(out.SQL); err != nil {
				return fmt.Errorf("generated SQL does not parse: %w", err)
			}
		}
		return writeCompiled(cmd.OutOrStdout(), out)
	},
}

func init() {
	f := compileCmd.Flags()
	f.StringP("schema", "s", "", "entity schema file (JSON or YAML)")
	f.String("statement", "select", "statement to build: select, count or delete")
	f.Bool("check", false, "parse the generated SQL with the PostgreSQL parser")
	compileCmd.MarkFlagRequired("schema")
}

type compiled struct {
	SQL         string `json:"sql"`
	Args        []any  `json:"args"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// loadSchemaFile reads a query.SchemaConfig with viper so JSON and YAML
// files are both accepted.
func loadSchemaFile(path string) (*query.EntitySchema, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	var sc query.SchemaConfig
	if err := v.Unmarshal(&sc, viper.DecodeHook(mapstructure.StringToSliceHookFunc(","))); err != nil {
		return nil, fmt.Errorf("decode schema file: %w", err)
	}
	return sc.Build()
}

// compileQuery merges the request onto the defaults, as the server does
// without a baseline, and renders stmt.
func compileQuery(s *query.EntitySchema, rawQuery, stmt string) (compiled, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	if err != nil {
		return compiled{}, fmt.Errorf("parse query: %w", err)
	}
	req, err := rest.ParseQueryParams(values)
	if err != nil {
		return compiled{}, err
	}
	plan, err := query.Compile(s, query.Merge(query.DefaultQueryParams(), req))
	if err != nil {
		return compiled{}, err
	}

	var q sq.Sqlizer
	switch stmt {
	case "select":
		q, err = query.ToSelect(s, plan)
	case "count":
		q, err = query.ToCount(s, plan)
	case "delete":
		q, err = query.ToDelete(s, plan)
	default:
		return compiled{}, fmt.Errorf("unknown statement %q", stmt)
	}
	if err != nil {
		return compiled{}, err
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return compiled{}, err
	}
	if args == nil {
		args = []any{}
	}
	return compiled{SQL: sql, Args: args}, nil
}

func writeCompiled(w io.Writer, out compiled) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
