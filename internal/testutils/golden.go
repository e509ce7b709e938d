package testutils

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var update = flag.Bool("update", false, "update golden files")

// GoldenPath returns the path of the golden file for the current test.
func GoldenPath(t *testing.T) string {
	t.Helper()

	return filepath.Join("testdata", "golden", strings.ReplaceAll(t.Name(), "/", "_"))
}

// UpdateEnabled reports whether the -update flag was passed.
func UpdateEnabled() bool {
	return *update
}

// LoadWithUpdateFromGolden loads the element from a plaintext golden file.
// It will update the file if the update flag is used prior to loading it.
func LoadWithUpdateFromGolden(t *testing.T, data string) string {
	t.Helper()

	goldPath := GoldenPath(t)

	if UpdateEnabled() {
		t.Logf("updating golden file %s", goldPath)
		require.NoError(t, os.MkdirAll(filepath.Dir(goldPath), 0750), "Cannot create directory for updating golden files")
		require.NoError(t, os.WriteFile(goldPath, []byte(data), 0600), "Cannot write golden file")
	}

	want, err := os.ReadFile(goldPath)
	require.NoError(t, err, "Cannot load golden file")

	return string(want)
}

// LoadWithUpdateFromGoldenYAML load the generic element from a YAML serialized golden file.
// It will update the file if the update flag is used prior to deserializing it.
func LoadWithUpdateFromGoldenYAML[E any](t *testing.T, got E) E {
	t.Helper()

	data, err := yaml.Marshal(got)
	require.NoError(t, err, "Cannot serialize to YAML")
	want := LoadWithUpdateFromGolden(t, string(data))

	var wantDeserialized E
	err = yaml.Unmarshal([]byte(want), &wantDeserialized)
	require.NoError(t, err, "Cannot deserialize golden file content")
	return wantDeserialized
}
