package storage

import (
	"go/build/constraint"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileConstraint(t *testing.T, path string) constraint.Expr {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, line := range strings.Split(string(data), "\n") {
		if constraint.IsGoBuild(line) {
			expr, err := constraint.Parse(line)
			require.NoError(t, err)
			return expr
		}
	}
	t.Fatalf("%s has no //go:build line", path)
	return nil
}

// Exactly one driver file must compile for every tag combination, or
// DriverName is either missing or declared twice.
func TestBuildConstraints_OneDriverPerTagSet(t *testing.T) {
	cgo := fileConstraint(t, "build_cgo.go")
	purego := fileConstraint(t, "build_purego.go")

	for _, tags := range [][]string{nil, {"purego"}, {"sqlite_vec"}, {"sqlite_vec", "purego"}} {
		set := make(map[string]bool, len(tags))
		for _, tag := range tags {
			set[tag] = true
		}
		has := func(tag string) bool { return set[tag] }

		assert.NotEqual(t, cgo.Eval(has), purego.Eval(has), "tags %v", tags)
	}

	both := func(tag string) bool { return tag == "purego" || tag == "sqlite_vec" }
	assert.True(t, purego.Eval(both), "purego wins when both tags are set")
}
