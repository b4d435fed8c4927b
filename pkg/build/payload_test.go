package build

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedstockTgz(t *testing.T, topdir string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: topdir + "/", Typeflag: tar.TypeDir, Mode: 0o755}))
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     topdir + "/" + name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func readTar(t *testing.T, data []byte) map[string]string {
	t.Helper()
	entries := map[string]string{}
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return entries
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = string(content)
	}
}

func TestComposeTar(t *testing.T) {
	tgz := feedstockTgz(t, "foo-feedstock-abc123", map[string]string{
		"recipe/meta.yaml": "package:\n  name: foo",
	})

	var out bytes.Buffer
	require.NoError(t, composeTar(&out, tgz, []byte("c_compiler: gcc")))

	entries := readTar(t, out.Bytes())
	assert.Equal(t, "package:\n  name: foo", entries["feedstock/recipe/meta.yaml"])
	assert.Equal(t, "c_compiler: gcc", entries["conda_build_config.yaml"])
	assert.Contains(t, entries, "feedstock/")
}

func TestRebase(t *testing.T) {
	cases := []struct {
		in   string
		want string
		keep bool
	}{
		{"foo-feedstock-abc/", "feedstock/", true},
		{"foo-feedstock-abc", "feedstock/", true},
		{"foo-feedstock-abc/recipe/meta.yaml", "feedstock/recipe/meta.yaml", true},
		{"./foo-feedstock-abc/recipe/build.sh", "feedstock/recipe/build.sh", true},
		{"", "", false},
		{"/etc/passwd", "", false},
		{"foo/../../escape", "", false},
	}
	for _, c := range cases {
		got, keep := rebase(c.in)
		assert.Equal(t, c.keep, keep, "input %q", c.in)
		if c.keep {
			assert.Equal(t, c.want, got, "input %q", c.in)
		}
	}
}

func TestNewPayloadDefaults(t *testing.T) {
	p := NewPayload("foo", "", afero.NewMemMapFs())
	assert.Equal(t, "master", p.Branch)
	assert.Equal(t, "foo.tar", p.TarName)
	assert.Equal(
		t,
		"https://codeload.github.com/AnacondaRecipes/foo-feedstock/tar.gz/refs/heads/master",
		p.feedstockURL(),
	)

	p = NewPayload("foo", "topic-branch", afero.NewMemMapFs())
	assert.Equal(
		t,
		"https://codeload.github.com/AnacondaRecipes/foo-feedstock/tar.gz/refs/heads/topic-branch",
		p.feedstockURL(),
	)
}
