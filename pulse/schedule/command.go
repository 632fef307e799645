package schedule

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/teranos/recenthistory/errors"
)

// maxOutputInError bounds how much command output is kept in a failure.
const maxOutputInError = 512

// CommandJob runs an external command for each firing.
type CommandJob struct {
	Line    string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
}

// NewCommandJob parses a shell-quoted command line.
func NewCommandJob(line string) (*CommandJob, error) {
	args, err := shellquote.Split(line)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid command line %q", line)
	}
	if len(args) == 0 {
		return nil, errors.NewInvalidRequestError("empty command line")
	}
	return &CommandJob{Line: line, Args: args}, nil
}

// Execute runs the command. Fire metadata is exported to the child as
// RECENTHISTORY_* environment variables. A non-zero exit becomes an error
// carrying the tail of the combined output.
func (j *CommandJob) Execute(ctx context.Context, ec *ExecutionContext) error {
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, j.Args[0], j.Args[1:]...)
	cmd.Dir = j.Dir
	cmd.Env = append(cmd.Environ(), j.Env...)
	cmd.Env = append(cmd.Env,
		"RECENTHISTORY_FIRE_INSTANCE_ID="+ec.FireInstanceID,
		"RECENTHISTORY_JOB="+ec.JobKey.String(),
		"RECENTHISTORY_TRIGGER="+ec.TriggerKey.String(),
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		output := strings.TrimSpace(out.String())
		if output == "" {
			return errors.Wrapf(err, "command %q failed", j.Args[0])
		}
		return errors.Wrapf(errors.Newf("%s: %s", err.Error(), tail(output)), "command %q failed", j.Args[0])
	}
	return nil
}

func tail(s string) string {
	if len(s) <= maxOutputInError {
		return s
	}
	return "…" + strings.ToValidUTF8(s[len(s)-maxOutputInError:], "")
}
