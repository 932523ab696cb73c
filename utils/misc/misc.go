package misc

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rudderlabs/rudder-go-kit/config"
)

// UploaderTmpDirName is the subdirectory holding downloaded audience files awaiting
// upload; each record gets its own directory underneath it.
const UploaderTmpDirName = "uploader-tmp"

var logOnce sync.Once

// CreateTMPDIR returns the directory for temporary audience files.
func CreateTMPDIR() (string, error) {
	tmpdirPath := strings.TrimSuffix(config.GetString("UPLOADER_TMPDIR", ""), "/")
	// second chance: fallback to /tmp if this folder exists
	if tmpdirPath == "" {
		fallbackPath := "/tmp"
		_, err := os.Stat(fallbackPath)
		if err == nil {
			tmpdirPath = fallbackPath
			logOnce.Do(func() {
				fmt.Printf("UPLOADER_TMPDIR not found, falling back to %v\n", fallbackPath)
			})
		}
	}
	if tmpdirPath == "" {
		return os.UserHomeDir()
	}
	return tmpdirPath, nil
}
