// Command overcode-hook is the short-lived receiver each agent CLI
// invokes out-of-band at lifecycle events.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/overcode/overcode/internal/hook"
	"github.com/overcode/overcode/internal/presence"
)

func main() {
	stateDir := flag.String("state-dir", defaultStateDir(), "root state directory")
	tickInterval := flag.Duration("tick-interval", 5*time.Second, "monitor tick interval, for presence staleness")
	flag.Parse()

	env, ok := hook.FromOSEnv(*stateDir)
	if !ok {
		os.Exit(0)
	}

	reader := presence.NewReader(*stateDir, *tickInterval)
	signal, _ := reader.Read() // absence is never fatal

	code := hook.Run(os.Stdin, os.Stderr, os.Stdout, env, signal, time.Now())
	os.Exit(code)
}

func defaultStateDir() string {
	if dir := os.Getenv("OVERCODE_STATE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".overcode"
	}
	return home + "/.overcode"
}
