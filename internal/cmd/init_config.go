package cmd

import (
	"fmt"
	"io"

	"github.com/Infomaniak/infomaniak-login-go/internal/misc"
)

// DoInitConfig writes the configuration template to path. It fails on an
// existing file unless overwrite is set.
func DoInitConfig(path string, overwrite bool, out io.Writer) error {
	if err := misc.WriteConfigTemplate(path, overwrite); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(outOrStdout(out), "Configuration template written to %s\n", path)
	return nil
}
