package types

// TableRenderer is implemented by results that print as a table
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
	EmptyMessage() string
}
