package testutil

import (
	"testing"

	"spmirror/internal/catalog"
	"spmirror/internal/core"
)

// NewTestCatalog creates an in-memory SQLite catalog with migrations
// applied, closed automatically when the test ends.
func NewTestCatalog(t *testing.T) core.Catalog {
	t.Helper()

	c, err := catalog.NewSQLiteCatalog(":memory:")
	if err != nil {
		t.Fatalf("failed to open test catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}
