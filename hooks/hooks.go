package hooks

import (
	"os/exec"

	log "github.com/sirupsen/logrus"
)

// Runner executes an external script on connection outage transitions. The
// monitor guarantees each fires at most once per outage.
type Runner struct {
	script string
}

// NewRunner returns a Runner for script; an empty script disables it.
func NewRunner(script string) *Runner {
	return &Runner{script: script}
}

func (r *Runner) ConnectionLost() {
	r.run("connection lost")
}

func (r *Runner) ConnectionRegained() {
	r.run("connection regained")
}

func (r *Runner) run(message string) {
	if r.script == "" {
		return
	}
	out, err := exec.Command(r.script, message).CombinedOutput()
	if err != nil {
		log.Errorf("Hook %s '%s' failed: %v (output: %s)", r.script, message, err, out)
		return
	}
	log.Infof("Ran hook %s '%s'", r.script, message)
}
