package remote

import (
	"fmt"
	"strings"
)

// Kind identifies the remote OS family, fixed once at detection time.
type Kind string

const (
	Linux   Kind = "linux"
	Windows Kind = "windows"
)

const (
	linuxUser   = "ec2-user"
	windowsUser = "dev-admin"
	// These two have to be a directory, not the root of a device like / or \
	linuxTopDir   = "/tmp"
	windowsTopDir = "\\tmp"
)

// CommandSet generates the literal command text for one OS family. It is pure
// string translation; nothing here touches a transport. Both variants must
// produce equivalent observable results for every operation.
type CommandSet interface {
	Kind() Kind
	User() string
	Separator() string
	TopDir() string
	// ArchTag is the conda subdir name for built artifacts on this OS.
	ArchTag() string
	// Probe is a trivial command that only succeeds on this OS family.
	Probe() string
	// Init sets up the build tool's shell integration, idempotently.
	Init() string
	TouchVerb() string
	CatVerb() string
	Exists(path string) string
	IsDir(path string) string
	Mkdir(path string) string
	List(path string) string
	RemoveDir(path string) string
	RemoveFile(path string) string
	ExtractTar(archive, dest string) string
	CreateTar(workdir, archive string, members []string) string
	// TailLog reads at most max lines of a log file starting after the first
	// skip lines.
	TailLog(logPath string, skip, max int) string
	// Background wraps a command so it survives the channel that launched it.
	Background(cmd string) string
}

// existsMarker is the literal token the existence and directory tests emit;
// its presence in captured output means true.
const existsMarker = "Yes"

func CommandsFor(kind Kind) CommandSet {
	if kind == Windows {
		return windowsCommands{}
	}
	return linuxCommands{}
}

type linuxCommands struct{}

var _ CommandSet = linuxCommands{}

func (linuxCommands) Kind() Kind        { return Linux }
func (linuxCommands) User() string      { return linuxUser }
func (linuxCommands) Separator() string { return "/" }
func (linuxCommands) TopDir() string    { return linuxTopDir }
func (linuxCommands) ArchTag() string   { return "linux-64" }
func (linuxCommands) Probe() string     { return "uname -a" }
func (linuxCommands) Init() string      { return "conda init" }
func (linuxCommands) TouchVerb() string { return "touch" }
func (linuxCommands) CatVerb() string   { return "cat" }

func (linuxCommands) Exists(path string) string {
	// Using single-quotes for the variable to avoid expansion
	return fmt.Sprintf("if [[ -e '%s' ]]; then echo %s; fi", path, existsMarker)
}

func (linuxCommands) IsDir(path string) string {
	return fmt.Sprintf("if [[ -d '%s' ]]; then echo %s; fi", path, existsMarker)
}

func (linuxCommands) Mkdir(path string) string {
	return fmt.Sprintf("mkdir -p %s", path)
}

func (linuxCommands) List(path string) string {
	return fmt.Sprintf("ls -1A %s", path)
}

func (linuxCommands) RemoveDir(path string) string {
	return fmt.Sprintf("rm -rf %s", path)
}

func (linuxCommands) RemoveFile(path string) string {
	return fmt.Sprintf("rm -rf %s", path)
}

func (linuxCommands) ExtractTar(archive, dest string) string {
	return fmt.Sprintf("tar -x -f %s -C %s", archive, dest)
}

func (linuxCommands) CreateTar(workdir, archive string, members []string) string {
	return fmt.Sprintf("cd %s && tar -cf %s %s 2>/dev/null || true", workdir, archive, strings.Join(members, " "))
}

func (linuxCommands) TailLog(logPath string, skip, max int) string {
	return fmt.Sprintf(`tail -n +%d "%s" | tail -n %d`, skip+1, logPath, max)
}

func (linuxCommands) Background(cmd string) string {
	return fmt.Sprintf("nohup sh -c %q >/dev/null 2>&1 &", cmd)
}

type windowsCommands struct{}

var _ CommandSet = windowsCommands{}

func (windowsCommands) Kind() Kind        { return Windows }
func (windowsCommands) User() string      { return windowsUser }
func (windowsCommands) Separator() string { return "\\" }
func (windowsCommands) TopDir() string    { return windowsTopDir }
func (windowsCommands) ArchTag() string   { return "win-64" }
func (windowsCommands) Probe() string     { return "ver" }
func (windowsCommands) Init() string      { return "C:\\miniconda3\\Scripts\\conda.exe init" }
func (windowsCommands) TouchVerb() string { return "copy nul" }
func (windowsCommands) CatVerb() string   { return "type" }

func (windowsCommands) Exists(path string) string {
	// Windows wants double-quotes for the variable
	return fmt.Sprintf(`if exist "%s" echo %s`, path, existsMarker)
}

func (windowsCommands) IsDir(path string) string {
	return fmt.Sprintf(`if exist "%s\*" echo %s`, path, existsMarker)
}

func (windowsCommands) Mkdir(path string) string {
	return fmt.Sprintf(`mkdir "%s"`, path)
}

func (windowsCommands) List(path string) string {
	return fmt.Sprintf(`dir /b "%s"`, path)
}

func (windowsCommands) RemoveDir(path string) string {
	return fmt.Sprintf(`rd /s /q "%s"`, path)
}

func (windowsCommands) RemoveFile(path string) string {
	return fmt.Sprintf(`del "%s"`, path)
}

func (windowsCommands) ExtractTar(archive, dest string) string {
	return fmt.Sprintf("tar -x -f %s -C %s", archive, dest)
}

func (windowsCommands) CreateTar(workdir, archive string, members []string) string {
	return fmt.Sprintf("cd %s && tar -cf %s %s 2>nul", workdir, archive, strings.Join(members, " "))
}

func (windowsCommands) TailLog(logPath string, skip, max int) string {
	return fmt.Sprintf(`powershell -Command "Get-Content %s | Select-Object -Skip %d | Select-Object -Last %d"`, logPath, skip, max)
}

func (windowsCommands) Background(cmd string) string {
	return fmt.Sprintf(`start /b cmd /c "%s"`, cmd)
}

// PathJoin joins segments with the separator and collapses any run of
// consecutive separators to one. The collapsing is a hand-rolled scan: the
// Windows separator is a regexp metacharacter, so a pattern substitution over
// the joined string is not safe here.
func PathJoin(sep string, paths ...string) string {
	joined := strings.Join(paths, sep)
	var cleaned strings.Builder
	prevSep := false
	for _, c := range joined {
		isSep := string(c) == sep
		if isSep && prevSep {
			continue
		}
		cleaned.WriteRune(c)
		prevSep = isSep
	}
	return cleaned.String()
}
