package domain

// Document is a retrieved corpus snippet. It lives only for the request that fetched it.
type Document struct {
	Text     string
	Metadata map[string]any
}
