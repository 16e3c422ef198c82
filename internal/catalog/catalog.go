// Package catalog loads and indexes the static rule catalog: page types,
// per-type applicable checks, document types and the legacy per-document-type
// check lists. The catalog is read-only at runtime; lookups never fail, they
// return empty results for unknown identifiers.
package catalog

import (
	"github.com/planwise/plancheck/internal/types"
)

// Catalog is an immutable, indexed view of one loaded rule catalog file.
type Catalog struct {
	version string

	pageTypes     map[string]types.PageTypeInfo
	pageTypeOrder []string

	documentTypes     map[string]types.DocumentTypeInfo
	documentTypeOrder []string

	checks     []types.CheckDefinition
	byPageType map[string][]types.CheckDefinition
}

// Version returns the catalog file's declared version string.
func (c *Catalog) Version() string {
	return c.version
}

// PageTypes returns the page-type descriptions keyed by page-type id.
func (c *Catalog) PageTypes() map[string]types.PageTypeInfo {
	return c.pageTypes
}

// PageTypeOrder returns page-type ids in the order the catalog file declares
// them. Batch planning iterates types in this order, so it must be stable.
func (c *Catalog) PageTypeOrder() []string {
	return c.pageTypeOrder
}

// PageType looks up one page type by id.
func (c *Catalog) PageType(id string) (types.PageTypeInfo, bool) {
	info, ok := c.pageTypes[id]
	return info, ok
}

// Checks returns every page-level check definition in the catalog.
func (c *Catalog) Checks() []types.CheckDefinition {
	return c.checks
}

// ChecksForPageType returns the checks applicable to the given page type.
// Unknown page types yield an empty slice, never an error.
func (c *Catalog) ChecksForPageType(pageType string) []types.CheckDefinition {
	return c.byPageType[pageType]
}

// DocumentTypes returns the document-type descriptions keyed by id.
func (c *Catalog) DocumentTypes() map[string]types.DocumentTypeInfo {
	return c.documentTypes
}

// DocumentTypeOrder returns document-type ids in catalog declaration order.
func (c *Catalog) DocumentTypeOrder() []string {
	return c.documentTypeOrder
}

// ChecksForDocumentType returns the legacy document-level check lists for a
// document type. Unknown types yield empty lists.
func (c *Catalog) ChecksForDocumentType(docType string) (completeness, compliance []types.CheckDefinition) {
	dt, ok := c.documentTypes[docType]
	if !ok {
		return nil, nil
	}
	return dt.CompletenessChecks, dt.ComplianceChecks
}
