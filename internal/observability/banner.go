package observability

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset = "\033[0m"
	colorCyan  = "\033[96m"
	colorDim   = "\033[2m"
)

// termMu serializes terminal output so log writes never interleave with
// the REPL prompt.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// termWriter is a mutex-guarded io.Writer for log output.
type termWriter struct{}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

// NewTermWriter returns an io.Writer suitable for log.SetOutput().
func NewTermWriter() *termWriter {
	return &termWriter{}
}

func PrintBanner() {
	banner := `
   ____  ____  ____  ________
  / __ \/ __ \/ __ )/  _/_  _/
 / / / / /_/ / __  |/ /  / /
/ /_/ / _, _/ /_/ // /  / /
\____/_/ |_/_____/___/ /_/

  remote tools, one loop
`
	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Printf("%s%s%s%s\n", strings.Repeat(" ", padding), colorCyan, l, colorReset)
	}
}

// PrintStatus writes a one-shot runtime status line (the /status command).
func PrintStatus(serverName string, toolCount int) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime).Round(time.Second)
	memMB := float64(m.Alloc) / 1024 / 1024

	termMu.Lock()
	defer termMu.Unlock()
	fmt.Printf("%sserver=%s tools=%d uptime=%s mem=%.1fMB goroutines=%d%s\n",
		colorDim, serverName, toolCount, uptime, memMB, runtime.NumGoroutine(), colorReset)
}
