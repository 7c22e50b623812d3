package common

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// CrashLogDir receives crash reports written by RecoverWithCrashFile
var CrashLogDir = "./logs"

// InstallCrashHandler sets the crash report directory and makes sure it exists
func InstallCrashHandler(logDir string) {
	if logDir != "" {
		CrashLogDir = logDir
	}
	if err := os.MkdirAll(CrashLogDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: failed to create log directory: %v\n", err)
	}
}

// WriteCrashFile writes a report for panicVal and returns its path, or "" if the file could not be written
func WriteCrashFile(panicVal interface{}, stackTrace string) string {
	var report bytes.Buffer
	fmt.Fprintf(&report, "ragstream crash %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&report, "version: %s\n", GetFullVersion())
	fmt.Fprintf(&report, "panic: %v\n\n", panicVal)
	report.WriteString(stackTrace)
	fmt.Fprintf(&report, "\ngoroutines: %d\n\n", runtime.NumGoroutine())
	report.WriteString(allGoroutineStacks())

	crashPath := filepath.Join(CrashLogDir, fmt.Sprintf("crash-%s.log", time.Now().Format("2006-01-02T15-04-05")))
	if err := os.WriteFile(crashPath, report.Bytes(), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: failed to write crash file: %v\n%s", err, report.String())
		return ""
	}

	fmt.Fprintf(os.Stderr, "\nFATAL: panic %v, report saved to %s\n", panicVal, crashPath)
	return crashPath
}

func allGoroutineStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) || len(buf) >= 16*1024*1024 {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}

// RecoverWithCrashFile is deferred at the top of main.
// Usage: defer common.RecoverWithCrashFile()
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		buf := make([]byte, 8192)
		n := runtime.Stack(buf, false)
		WriteCrashFile(r, string(buf[:n]))
		os.Exit(1)
	}
}
