package frame_test

import (
	"testing"

	"micdash/testutil"
)

func TestFrameHasNoInternalDependencies(t *testing.T) {
	forbidden := testutil.PrefixForbidden("micdash/internal")
	testutil.AssertNoDirectImports(t, ".", forbidden, "pkg/frame is public")
	if testing.Short() {
		t.Skip("go list -deps in short mode")
	}
	testutil.AssertNoTransitiveDependency(t, ".", forbidden, "pkg/frame is public")
}
