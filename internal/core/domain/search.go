package domain

// SearchOptions configures a catalog search.
type SearchOptions struct {
	// Limit is the maximum number of results.
	Limit int

	// Entity filters to one entity.
	Entity string

	// Workflow filters to one workflow.
	Workflow string

	// Source filters to one source.
	Source string

	// Category filters to one classifier category.
	Category string

	// Raw passes the query to the full-text engine unmodified.
	Raw bool
}

// SearchResult represents a single search hit.
type SearchResult struct {
	// Document is the matched catalog row.
	Document DocumentRow

	// Score is the relevance score (bm25, lower is better; 0 for listings).
	Score float64

	// Snippet is a fragment of the matched text with terms marked.
	Snippet string
}
