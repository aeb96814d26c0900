package misc

import (
	"fmt"
	"path/filepath"
)

// LogSavingCredentials tells the user where a token file is written.
func LogSavingCredentials(path string) {
	if path == "" {
		return
	}
	fmt.Printf("Saving credentials to %s\n", filepath.Clean(path))
}
