package store

// Table describes a table or view of a schema.
type Table struct {
	Name        string `json:"name"`
	RowEstimate int64  `json:"rowEstimate"`
}

// Column describes a column of a table. NDistinct follows the planner statistics convention: a positive value is a
// distinct count and a negative value is minus the fraction of rows that are distinct. HasStats is false when the
// table has not been analyzed.
type Column struct {
	Name      string  `json:"name"`
	DataType  string  `json:"dataType"`
	NDistinct float64 `json:"nDistinct"`
	HasStats  bool    `json:"hasStats"`
}

// ValuesQuery asks for at most Limit distinct non-null values of a column, optionally restricted to those containing
// Filter (case-insensitive).
type ValuesQuery struct {
	Schema string
	Table  string
	Column string
	Filter string
	Limit  int
}

// Operations supported in predicates.
const (
	OpEq         = "eq"
	OpIn         = "in"
	OpLike       = "like"
	OpLt         = "lt"
	OpGt         = "gt"
	OpBetween    = "between"
	OpIsNull     = "isnull"
	OpStartsWith = "startsWith"
	OpEndsWith   = "endsWith"
)

// Predicate restricts the rows of a DataQuery. Inverse negates it.
type Predicate struct {
	Field     string   `json:"field"`
	Operation string   `json:"operation"`
	Set       []string `json:"set"`
	Inverse   bool     `json:"inverse"`
}

// OrderBy sorts the rows of a DataQuery by Field, ascending unless Direction is "desc".
type OrderBy struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// DataQuery selects Fields (all columns when empty) from a table.
type DataQuery struct {
	Schema     string
	Table      string
	Fields     []string
	Predicates []Predicate
	OrderBy    []OrderBy
	Limit      int
}

// Row is a result row keyed by column name.
type Row map[string]interface{}
