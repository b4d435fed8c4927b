package remote

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kevinburke/ssh_config"
	"github.com/pkg/sftp"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
	"github.com/anaconda/sisyphus/pkg/files"
)

const connectTimeout = 10 * time.Second

// Transport is one open command-execution link to a remote host. Transports
// are transient: they may be closed and reopened any number of times against
// the same address, and reopening is the only recovery mechanism for a dead
// link.
type Transport interface {
	// Run executes a command and returns its combined output. A nonzero exit
	// is an error.
	Run(cmd string) (string, error)
	// Start submits a command without waiting for it. Only a transport-level
	// submission failure is reported; the command's own outcome is not.
	Start(cmd string) error
	Put(localPath, remotePath string) error
	Get(remotePath, localPath string) error
	Close() error
}

// Dialer opens a Transport for user@addr. Injected so tests can run without a
// network.
type Dialer func(user, addr string) (Transport, error)

type sshChannel struct {
	client *ssh.Client
	ftp    *sftp.Client
}

var _ Transport = &sshChannel{}

// DialSSH opens an SSH channel with a bounded connect timeout. Host keys are
// not verified: build hosts are freshly provisioned throwaway instances whose
// keys are never known in advance.
func DialSSH(user, addr string) (Transport, error) {
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods(addr),
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // see above
		Timeout:         connectTimeout,
	}
	client, err := ssh.Dial("tcp", net.JoinHostPort(addr, "22"), cfg)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	return &sshChannel{client: client}, nil
}

// authMethods collects publickey auth from the ssh agent and from key files,
// honoring an IdentityFile override in the user's ssh config for this host.
func authMethods(addr string) []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	var signers []ssh.Signer
	for _, path := range identityFiles(addr) {
		pem, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			log.Debugf("Skipping unparsable key '%s': %s", path, err)
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	return methods
}

func identityFiles(addr string) []string {
	var paths []string
	if identity := ssh_config.Get(addr, "IdentityFile"); identity != "" {
		if strings.HasPrefix(identity, "~") {
			identity = filepath.Join(files.GetHomeDir(), strings.TrimPrefix(identity, "~"))
		}
		paths = append(paths, identity)
	}
	sshDir := filepath.Join(files.GetHomeDir(), ".ssh")
	paths = append(paths, filepath.Join(sshDir, "id_ed25519"), filepath.Join(sshDir, "id_rsa"))
	return paths
}

func (c *sshChannel) Run(cmd string) (string, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}
	defer session.Close() //nolint:errcheck // session is single-use

	out, err := session.CombinedOutput(cmd)
	if err != nil {
		return "", breverrors.WrapAndTrace(err, fmt.Sprintf("running '%s': %s", cmd, strings.TrimSpace(string(out))))
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *sshChannel) Start(cmd string) error {
	session, err := c.client.NewSession()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	err = session.Start(cmd)
	if err != nil {
		session.Close() //nolint:errcheck,gosec // already failing
		return breverrors.WrapAndTrace(err)
	}
	// Reap in the background; the caller never waits on the submission. The
	// payload itself is wrapped by CommandSet.Background so it survives this
	// session going away.
	go func() {
		_ = session.Wait()
		_ = session.Close()
	}()
	return nil
}

func (c *sshChannel) sftp() (*sftp.Client, error) {
	if c.ftp != nil {
		return c.ftp, nil
	}
	ftp, err := sftp.NewClient(c.client)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	c.ftp = ftp
	return ftp, nil
}

func (c *sshChannel) Put(localPath, remotePath string) error {
	ftp, err := c.sftp()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	src, err := os.Open(localPath)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	defer src.Close() //nolint:errcheck // read-only file
	info, err := src.Stat()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	dst, err := ftp.Create(remotePath)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	bar := transferBar(info.Size(), "Uploading "+filepath.Base(localPath))
	_, err = io.Copy(io.MultiWriter(dst, bar), src)
	if err != nil {
		dst.Close() //nolint:errcheck,gosec // already failing
		return breverrors.WrapAndTrace(err)
	}
	err = dst.Close()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

func (c *sshChannel) Get(remotePath, localPath string) error {
	ftp, err := c.sftp()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	src, err := ftp.Open(remotePath)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	defer src.Close() //nolint:errcheck // read-only file
	info, err := src.Stat()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	bar := transferBar(info.Size(), "Downloading "+filepath.Base(remotePath))
	_, err = io.Copy(io.MultiWriter(dst, bar), src)
	if err != nil {
		dst.Close() //nolint:errcheck,gosec // already failing
		return breverrors.WrapAndTrace(err)
	}
	err = dst.Close()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

// transferBar reports byte progress of an sftp transfer on stderr, clearing
// itself once the copy completes.
func transferBar(size int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(15),
		progressbar.OptionClearOnFinish(),
	)
}

func (c *sshChannel) Close() error {
	if c.ftp != nil {
		_ = c.ftp.Close()
		c.ftp = nil
	}
	err := c.client.Close()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}
