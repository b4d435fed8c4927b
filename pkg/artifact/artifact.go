// Package artifact packages built conda artifacts for transfer and keeps the
// two equivalent archive formats (.tar.bz2 and .conda) in sync.
package artifact

import (
	"archive/tar"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
	"github.com/anaconda/sisyphus/pkg/files"
	"github.com/anaconda/sisyphus/pkg/remote"
)

const (
	bz2Suffix   = ".tar.bz2"
	condaSuffix = ".conda"
)

// Packager downloads build artifacts from one host session and transmutes
// them between formats. Local files go through afero so tests run in memory.
type Packager struct {
	session  *remote.Session
	fs       afero.Fs
	activate string
}

func NewPackager(s *remote.Session, fs afero.Fs, activate string) *Packager {
	return &Packager{session: s, fs: fs, activate: activate}
}

func (p *Packager) archDir(pkg string) string {
	return p.session.Path(pkg, "build", p.session.Commands().ArchTag())
}

// Transmute converts .tar.bz2 artifacts to .conda and vice-versa. It is a
// set difference, not a blind pairwise conversion: an artifact already
// present in both formats is left untouched, so the two passes operate on
// disjoint inputs and their order doesn't matter.
func (p *Packager) Transmute(pkg string) error {
	pkgdir := p.archDir(pkg)
	exists, err := p.session.Exists(pkgdir)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	if !exists {
		return nil
	}
	entries, err := p.session.List(pkgdir)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	allBz2 := lo.Filter(entries, func(e string, _ int) bool { return strings.HasSuffix(e, bz2Suffix) })
	allConda := lo.Filter(entries, func(e string, _ int) bool { return strings.HasSuffix(e, condaSuffix) })

	bz2Missing := lo.Filter(allBz2, func(e string, _ int) bool {
		return !lo.Contains(allConda, strings.TrimSuffix(e, bz2Suffix)+condaSuffix)
	})
	condaMissing := lo.Filter(allConda, func(e string, _ int) bool {
		return !lo.Contains(allBz2, strings.TrimSuffix(e, condaSuffix)+bz2Suffix)
	})

	var result *multierror.Error
	for _, artifact := range bz2Missing {
		log.Infof("Transmuting %s to %s", artifact, condaSuffix)
		result = multierror.Append(result, p.convert(pkgdir, artifact, condaSuffix))
	}
	for _, artifact := range condaMissing {
		log.Infof("Transmuting %s to %s", artifact, bz2Suffix)
		result = multierror.Append(result, p.convert(pkgdir, artifact, bz2Suffix))
	}
	if err := result.ErrorOrNil(); err != nil {
		return breverrors.WrapAndTrace(err)
	}
	err = p.session.Reacquire(0)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

func (p *Packager) convert(pkgdir, artifact, toSuffix string) error {
	// Each conversion can take a while; assume the channel is stale.
	err := p.session.Reacquire(0)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	_, err = p.session.Run(fmt.Sprintf("%s cd %s && cph t %s %s", p.activate, pkgdir, artifact, toSuffix))
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

// Download fetches build artifacts to a local destination. With full set it
// grabs the whole session directory tree instead of just the artifact files.
// A build that produced zero artifacts is not an error: nothing is archived
// or transferred.
func (p *Packager) Download(pkg, destination string, full bool) error {
	err := p.Transmute(pkg)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	builddir := p.session.Path(pkg, "build")
	archTag := p.session.Commands().ArchTag()
	pkgdir := p.session.Join(builddir, archTag)

	var members []string
	exists, err := p.session.Exists(pkgdir)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	if exists {
		entries, err := p.session.List(pkgdir)
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		for _, e := range entries {
			if strings.HasSuffix(e, bz2Suffix) || strings.HasSuffix(e, condaSuffix) {
				members = append(members, p.session.Join(archTag, e))
			}
		}
	}
	if len(members) == 0 {
		log.Warn("No build artifacts to download")
		return nil
	}

	// The name carries the package, OS kind and a random suffix so that
	// concurrent invocations can't clobber each other's transport tar.
	tfName := fmt.Sprintf("sisyphus_%s_%s_%s.tar", pkg, p.session.Kind(), uuid.NewString()[:8])
	tf := p.session.Join(p.session.Commands().TopDir(), tfName)

	if full {
		log.Infof("Downloading complete sisyphus data at '%s'", p.session.SessionDir())
		p.session.RunQuiet(p.session.Commands().CreateTar(p.session.Commands().TopDir(), tf, []string{"sisyphus"}))
	} else {
		log.Infof("Downloading %d build artifacts in '%s'", len(members), pkgdir)
		p.session.RunQuiet(p.session.Commands().CreateTar(builddir, tf, members))
	}

	// tar reports success even when the glob matched nothing; a missing
	// archive makes every later step meaningless.
	tarExists, err := p.session.Exists(tf)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	if !tarExists {
		return breverrors.WrapAndTrace(&breverrors.EmptyArchiveError{Path: tf})
	}

	destDir := filepath.Join(destination, pkg)
	err = files.EnsureDir(p.fs, destDir)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	// Delete the previous extraction of the same target subdirectory.
	previous := filepath.Join(destDir, archTag)
	if full {
		previous = filepath.Join(destDir, "sisyphus")
	}
	err = files.RemoveAllIfExists(p.fs, previous)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	err = p.session.Reacquire(0)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	localTar := filepath.Join(destDir, tfName)
	err = p.session.Get(tf, localTar)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	err = p.extract(localTar, destDir)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	err = p.session.Reacquire(0)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	// Cleanup both copies of the transport tar.
	err = p.fs.Remove(localTar)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	err = p.session.Remove(tf)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	log.Info("Done")
	return nil
}

func (p *Packager) extract(tarPath, destDir string) error {
	f, err := p.fs.Open(tarPath)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		name := filepath.Clean(hdr.Name)
		if filepath.IsAbs(name) || strings.HasPrefix(name, "..") {
			continue
		}
		target := filepath.Join(destDir, name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			err = files.EnsureDir(p.fs, target)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
		case tar.TypeReg:
			err = p.writeEntry(target, tr)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
		}
	}
}

func (p *Packager) writeEntry(target string, r io.Reader) error {
	err := files.EnsureDir(p.fs, filepath.Dir(target))
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	out, err := p.fs.Create(target)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	_, err = io.Copy(out, r) //nolint:gosec // local extraction of our own archive
	if err != nil {
		out.Close() //nolint:errcheck,gosec // already failing
		return breverrors.WrapAndTrace(err)
	}
	err = out.Close()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}
