// Package rest exposes crud services over HTTP.
//
// Each registered entity gets these routes, every one of which can be
// disabled:
//
//	Route                      | Name     | Result
//	---------------------------|----------|------------------------------------
//	GET    /{entity}           | findAll  | {data, page, pageSize, pageCount, total, offset, pagination}
//	GET    /{entity}/count     | count    | number of matching rows
//	GET    /{entity}/{id}      | findById | the row, 404 when missing
//	POST   /{entity}           | create   | the created row (201)
//	PATCH  /{entity}/{id}      | update   | the updated row, also on PUT
//	DELETE /{entity}/{ids}     | delete   | the deleted rows, ids joined by "||"
//
// Read routes take their query in bracket notation:
//
//	Parameter                                   | Description
//	--------------------------------------------|------------------------------------
//	?fields[0]=name or ?fields=id,name          | Select columns (primary key always included)
//	?filter[0][field]=age&filter[0][operator]=$gte&filter[0][value]=18 | AND condition
//	?or[0][field]=role_id&or[0][operator]=$isnull | OR condition
//	?filter[0][value][0]=1&filter[0][value][1]=2 | List value for $in, $notin, $between
//	?join[0][field]=role&join[0][select][0]=name | Embed a relation, "*" embeds all
//	?sort[0][field]=name&sort[0][order]=DESC    | Order results
//	?limit=50&page=2 or ?offset=50              | Pagination, page wins over offset
//	?pagination=false                           | Unbounded result
//	?cache=true                                 | Serve from the result cache
//	?includeDeleted=true                        | Include soft-deleted rows
//
// Every request is merged onto query.DefaultQueryParams and the entity's
// configured baseline query. A "Prefer: return=minimal" header makes
// mutations answer 204 without a body.
//
// Example usage:
//
//	router := httputil.NewRouter()
//	server := rest.NewServer(router, logger)
//	if err := server.Register(rest.EntityOptions{Service: users}); err != nil {
//		log.Fatal(err)
//	}
//	log.Fatal(router.ListenAndServe(":8080"))
package rest
