package models

// CatalogMatch is the cross-reference record returned by the enrichment catalog.
type CatalogMatch struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	PreviewURL string `json:"preview_url,omitempty"`
	ArtworkURL string `json:"artwork_url"`
}
