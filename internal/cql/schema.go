// Package cql turns lowered filter conjunctions into CQL statements over
// the shredded document table and defines the executor those statements
// run against.
//
// Shredded table layout (written by the external document encoder):
//
//	key                     tuple<tinyint, text>  partition key, see codec.Key
//	tx_id                   timeuuid             last write, used for LWT deletes
//	doc_json                text                 the full document
//	exist_keys              set<text>            every path present
//	array_size              map<text, int>       path -> array length
//	array_contains          set<text>            "path tag" per scalar/element
//	query_bool_values       map<text, tinyint>   path -> boolean
//	query_dbl_values        map<text, decimal>   path -> number
//	query_text_values       map<text, text>      path -> string or content hash
//	query_timestamp_values  map<text, timestamp> path -> date
//	query_null_values       set<text>            paths holding null
//	query_vector_value      vector<float, n>     not read by this package
package cql

// Column names of the shredded table.
const (
	ColKey             = "key"
	ColTxID            = "tx_id"
	ColDocJSON         = "doc_json"
	ColExistKeys       = "exist_keys"
	ColArraySize       = "array_size"
	ColArrayContains   = "array_contains"
	ColBoolValues      = "query_bool_values"
	ColDblValues       = "query_dbl_values"
	ColTextValues      = "query_text_values"
	ColTimestampValues = "query_timestamp_values"
	ColNullValues      = "query_null_values"
	ColVectorValue     = "query_vector_value"
)

// DocumentColumns is the projection used for document reads.
var DocumentColumns = []string{ColKey, ColTxID, ColDocJSON}

// IndexColumns is every column the write path populates besides the
// document itself, in table order.
var IndexColumns = []string{
	ColExistKeys,
	ColArraySize,
	ColArrayContains,
	ColBoolValues,
	ColDblValues,
	ColTextValues,
	ColTimestampValues,
	ColNullValues,
}
