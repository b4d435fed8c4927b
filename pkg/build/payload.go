package build

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
	"github.com/anaconda/sisyphus/pkg/remote"
)

const (
	feedstockOrg  = "AnacondaRecipes"
	defaultBranch = "master"

	// The shared pinnings file comes from the aggregate repo, always from the
	// default branch regardless of the feedstock branch being built.
	aggregateCBCURL = "https://raw.githubusercontent.com/AnacondaRecipes/aggregate/master/conda_build_config.yaml"
)

// Payload is the data shipped to the host for one build: the feedstock
// checkout plus the shared conda_build_config.yaml, packed into a single
// uncompressed tar the host-side tar can extract on both OS families.
type Payload struct {
	Package string
	Branch  string
	TarName string

	fs     afero.Fs
	client *resty.Client
}

func NewPayload(pkg, branch string, fs afero.Fs) *Payload {
	if branch == "" {
		branch = defaultBranch
	}
	return &Payload{
		Package: pkg,
		Branch:  branch,
		TarName: pkg + ".tar",
		fs:      fs,
		client:  resty.New(),
	}
}

func (p *Payload) feedstockURL() string {
	return fmt.Sprintf("https://codeload.github.com/%s/%s-feedstock/tar.gz/refs/heads/%s", feedstockOrg, p.Package, p.Branch)
}

// Stage downloads the feedstock and the pinnings file and writes the payload
// tar into dir, returning the local tar path.
func (p *Payload) Stage(dir string) (string, error) {
	log.Infof("Fetching feedstock '%s-feedstock' at branch '%s'", p.Package, p.Branch)
	feedstock, err := p.fetch(p.feedstockURL())
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}
	cbc, err := p.fetch(aggregateCBCURL)
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}

	localTar := filepath.Join(dir, p.TarName)
	out, err := p.fs.Create(localTar)
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}
	err = composeTar(out, feedstock, cbc)
	if err != nil {
		out.Close() //nolint:errcheck,gosec // already failing
		return "", breverrors.WrapAndTrace(err)
	}
	err = out.Close()
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}
	return localTar, nil
}

// Upload stages the payload and puts it at the root of the host's session
// directory, cleaning up the local copy afterwards.
func (p *Payload) Upload(s *remote.Session) error {
	dir, err := afero.TempDir(p.fs, "", "sisyphus")
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	defer p.fs.RemoveAll(dir) //nolint:errcheck // scratch space

	localTar, err := p.Stage(dir)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	err = s.Put(localTar, s.Path(p.TarName))
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

func (p *Payload) fetch(url string) ([]byte, error) {
	resp, err := p.client.R().Get(url)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	if resp.IsError() {
		return nil, breverrors.WrapAndTrace(fmt.Errorf("fetching '%s' failed: %s", url, resp.Status()))
	}
	return resp.Body(), nil
}

// composeTar rewrites the GitHub feedstock tarball into the payload layout:
// the archive's single top-level directory (named <repo>-<ref> by GitHub)
// becomes "feedstock/", and the pinnings file sits next to it as
// "conda_build_config.yaml".
func composeTar(w io.Writer, feedstockTgz, cbc []byte) error {
	gz, err := gzip.NewReader(bytes.NewReader(feedstockTgz))
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	defer gz.Close() //nolint:errcheck // read-only stream

	tw := tar.NewWriter(w)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		name, ok := rebase(hdr.Name)
		if !ok {
			continue
		}
		hdr.Name = name
		if err := tw.WriteHeader(hdr); err != nil {
			return breverrors.WrapAndTrace(err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := io.Copy(tw, tr); err != nil { //nolint:gosec // trusted feedstock archive
				return breverrors.WrapAndTrace(err)
			}
		}
	}

	err = tw.WriteHeader(&tar.Header{
		Name:     "conda_build_config.yaml",
		Mode:     0o644,
		Size:     int64(len(cbc)),
		Typeflag: tar.TypeReg,
	})
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	_, err = tw.Write(cbc)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	err = tw.Close()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

// rebase swaps the archive's top-level directory for "feedstock". The
// top-level entry itself maps to "feedstock/"; anything that would escape the
// tree is dropped.
func rebase(name string) (string, bool) {
	name = strings.TrimPrefix(name, "./")
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "..") {
		return "", false
	}
	parts := strings.SplitN(name, "/", 2)
	if len(parts) == 1 || parts[1] == "" {
		return "feedstock/", true
	}
	return "feedstock/" + parts[1], true
}
