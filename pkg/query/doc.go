// Package query compiles REST list/find requests into parameterized SQL.
//
// A request is described by [QueryParams]: selected fields, AND filters, OR
// filters, joins, sort, pagination, a cache hint and soft-delete visibility.
// Requests arrive in bracket notation, for example:
//
//	?fields[0]=name&filter[0][field]=age&filter[0][operator]=$gte&filter[0][value]=18
//	&or[0][field]=role&or[0][operator]=$eq&or[0][value]=admin
//	&join[0][field]=role&sort[0][field]=name&sort[0][order]=DESC&limit=10&page=2
//
// The pipeline is:
//
//	Decode   raw nested map -> QueryParams (strict coercion of flags and numbers)
//	Merge    defaults + baseline + request -> complete QueryParams
//	Compile  EntitySchema + QueryParams -> QueryPlan
//	ToSelect QueryPlan -> squirrel.SelectBuilder
//
// Filter operators:
//
//	Operator  | SQL
//	----------|-----------------------------------------
//	$eq $ne   | col = :p, col != :p
//	$gt $lt   | col > :p, col < :p
//	$gte $lte | col >= :p, col <= :p
//	$starts   | col LIKE 'v%'
//	$ends     | col LIKE '%v'
//	$cont     | col LIKE '%v%'
//	$excl     | col NOT LIKE '%v%'
//	$in       | col IN (...)
//	$notin    | col NOT IN (...)
//	$isnull   | col IS NULL
//	$notnull  | col IS NOT NULL
//	$between  | col BETWEEN :p_0 AND :p_1
//
// Each operator except $isnull, $notnull and $between has a case-insensitive
// variant suffixed with L ($eqL, $contL, $inL, ...) comparing LOWER(col)
// against the lower-cased value. PostgreSQL uses ILIKE for the pattern
// variants. Unknown operators are treated as $eq.
//
// Unknown entries in fields are dropped rather than rejected, and primary key
// columns are always selected. Values are always bound; column names are
// checked against an injection pattern list and quoted.
package query
