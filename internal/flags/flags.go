// Package flags contains the urfave/cli plumbing shared by the corechain
// command-line tools: flag categories, a directory-valued flag type, and
// the app-level help/version template. Reconstructed in the shape
// go-ethereum's own internal/flags package is used from cmd/utils (that
// package itself is unexported outside go-ethereum's module, so this
// module carries its own copy rather than importing it).
package flags

import (
	"flag"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
)

// Flag categories, used to group flags in `--help` output the same way
// go-ethereum's cmd/geth does.
const (
	EthCategory     = "ETHEREUM"
	AccountCategory = "ACCOUNT"
	VMCategory      = "VM"
	APICategory     = "API AND CONSOLE"
	LoggingCategory = "LOGGING AND DEBUGGING"
	MiscCategory    = "MISC"
)

// DirectoryString is a custom type which is registered in the flags library
// which cli uses for argument parsing. It allows us to expand Value to an
// absolute path when the argument is parsed.
type DirectoryString string

func (s *DirectoryString) String() string {
	return string(*s)
}

func (s *DirectoryString) Set(value string) error {
	*s = DirectoryString(expandPath(value))
	return nil
}

// DirectoryFlag is a flag of type DirectoryString.
type DirectoryFlag struct {
	Name  string
	Usage string
	Value DirectoryString

	Aliases  []string
	EnvVars  []string
	Category string

	HasBeenSet bool
}

func (f *DirectoryFlag) Names() []string      { return append([]string{f.Name}, f.Aliases...) }
func (f *DirectoryFlag) IsSet() bool          { return f.HasBeenSet }
func (f *DirectoryFlag) String() string       { return f.Usage }
func (f *DirectoryFlag) TakesValue() bool     { return true }
func (f *DirectoryFlag) GetUsage() string     { return f.Usage }
func (f *DirectoryFlag) GetCategory() string  { return f.Category }
func (f *DirectoryFlag) GetValue() string     { return f.Value.String() }
func (f *DirectoryFlag) GetEnvVars() []string { return f.EnvVars }
func (f *DirectoryFlag) IsVisible() bool      { return true }
func (f *DirectoryFlag) IsRequired() bool     { return false }

func (f *DirectoryFlag) Apply(set *flag.FlagSet) error {
	for _, envVar := range f.EnvVars {
		if v := os.Getenv(envVar); v != "" {
			f.Value.Set(v)
			break
		}
	}
	for _, name := range f.Names() {
		set.Var(&f.Value, name, f.Usage)
	}
	return nil
}

var _ cli.Flag = (*DirectoryFlag)(nil)

// expandPath expands a file path
// 1. replace tilde with users home dir
// 2. expands embedded environment variables
// Unlike some shell expanders, this one works in only one pass, instead of
// expanding a value recursively when the variable exists.
func expandPath(p string) string {
	if i := strings.Index(p, ":"); i > 0 {
		return p
	}
	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, "~\\") {
		if home := HomeDir(); home != "" {
			p = home + p[1:]
		}
	}
	return filepath.Clean(os.Expand(p, os.Getenv))
}

// HomeDir returns the current user's home directory, or the empty string
// if it cannot be determined.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// NewApp creates an app with sane defaults.
func NewApp(usage string) *cli.App {
	app := cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = usage
	app.Copyright = "Copyright " + fmt.Sprint(2024) + " The corechain Authors"
	return app
}
