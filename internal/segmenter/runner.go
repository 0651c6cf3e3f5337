package segmenter

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog/log"
)

// Runner executes the external media tools.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	Run(ctx context.Context, name string, args ...string) error
}

type ExecRunner struct{}

func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	log.Debug().Str("op", "segmenter/exec").Msgf("Executing command: %s", cmd.String())
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return out, fmt.Errorf("%s error: %v\nOutput: %s", name, err, string(ee.Stderr))
		}
		return out, fmt.Errorf("%s error: %v", name, err)
	}
	return out, nil
}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	log.Debug().Str("op", "segmenter/exec").Msgf("Executing command: %s", cmd.String())
	output, err := cmd.CombinedOutput()
	if err != nil {
		log.Error().Str("op", "segmenter/exec").Msgf("%s output:\n%s", name, string(output))
		return fmt.Errorf("%s error: %v\nOutput: %s", name, err, string(output))
	}
	return nil
}
