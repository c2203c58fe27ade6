package process

import (
	"context"
	"fmt"

	"librarian/internal/models"
)

// Sentinel statuses shared by every process type. A process is created
// at StatusInitiate and is terminal once it reaches StatusFinished.
const (
	StatusInitiate = "initiate"
	StatusFinished = "finished"
)

// Finisher assembles the collected fields into a business request and
// submits it. It returns the confirmation text to send to the user.
// Field values are keyed by step name.
type Finisher func(ctx context.Context, contact models.Contact, fields map[string]string) (string, error)

// Definition declares one process type: its ordered steps, the prompt
// shown when each step becomes current, and the finisher invoked at the
// end. Steps exclude the initiate/finished sentinels.
type Definition struct {
	Steps    []string
	Prompts  map[string]string
	Finisher Finisher
}

// sequence returns the full status sequence the step counter indexes:
// initiate, the declared steps, finished.
func (d Definition) sequence() []string {
	seq := make([]string, 0, len(d.Steps)+2)
	seq = append(seq, StatusInitiate)
	seq = append(seq, d.Steps...)
	seq = append(seq, StatusFinished)
	return seq
}

func (d Definition) validate() error {
	if len(d.Steps) == 0 {
		return fmt.Errorf("process definition has no steps")
	}
	if d.Finisher == nil {
		return fmt.Errorf("process definition has no finisher")
	}
	for _, step := range d.Steps {
		if step == StatusInitiate || step == StatusFinished {
			return fmt.Errorf("step %q collides with a sentinel status", step)
		}
		if _, ok := d.Prompts[step]; !ok {
			return fmt.Errorf("step %q has no prompt", step)
		}
	}
	return nil
}
