package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	initLogger sync.Once
	stdout     *log.Logger
)

// Logger returns the process-wide logger. Every component writes through it
// so output stays one JSON object per line on stdout.
func Logger() *log.Logger {
	initLogger.Do(func() {
		stdout = log.New(os.Stdout, "", 0)
	})
	return stdout
}

// LogRequest emits entry as a single JSON line. An entry that cannot be
// marshalled is replaced with a fixed error line rather than dropped.
func LogRequest(entry map[string]any) {
	line, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log entry not serializable"}`)
		return
	}
	Logger().Println(string(line))
}
