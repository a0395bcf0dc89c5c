package localize

import (
	"testing"

	"pokeindex/testutil"
)

func TestLocalizeIsPure(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.Either(testutil.StorageImportForbidden, testutil.TransportImportForbidden, testutil.InternalImportForbidden), "localization policy has no dependencies")
}
