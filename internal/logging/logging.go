package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogFilePath is <logsDir>/<name>.<start as 20060102_150405>.log.
func LogFilePath(logsDir, name string, start time.Time) string {
	return filepath.Join(logsDir, fmt.Sprintf("%s.%s.log", name, start.Format("20060102_150405")))
}
