package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/grailbio/base/log"
	"v.io/x/lib/envvar"
	"v.io/x/lib/lookpath"
)

// CommandError is returned by RunCommand when the command exits with a
// nonzero status.
type CommandError struct {
	Cmd      string
	ExitCode int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q exited with status %d", e.Cmd, e.ExitCode)
}

// RunCommand runs cmdLine with "sh -c", copying its stdout and stderr to
// os.Stdout line by line as the command runs.
func RunCommand(cmdLine string) error {
	return RunCommandTo(os.Stdout, cmdLine)
}

// RunCommandTo runs cmdLine with "sh -c", copying its combined stdout and
// stderr to w line by line as the command runs. It returns a *CommandError if
// the command exits with a nonzero status.
func RunCommandTo(w io.Writer, cmdLine string) error {
	sh, err := lookpath.Look(envvar.SliceToMap(os.Environ()), "sh")
	if err != nil {
		return err
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		return err
	}
	cmd := exec.Command(sh, "-c", cmdLine)
	cmd.Stdout = pw
	cmd.Stderr = pw
	log.Debug.Printf("run: %s", cmdLine)
	if err := cmd.Start(); err != nil {
		pr.Close() // nolint: errcheck
		pw.Close() // nolint: errcheck
		return err
	}
	// The child owns the write end now; closing ours lets copyLines see EOF
	// once the command and its children exit.
	pw.Close() // nolint: errcheck

	copyErr := copyLines(w, pr)
	pr.Close() // nolint: errcheck

	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return &CommandError{Cmd: cmdLine, ExitCode: exitErr.ExitCode()}
		}
		return err
	}
	return copyErr
}

// copyLines copies r to w one line at a time, as the lines arrive. Lines
// longer than the read buffer are copied in pieces. r is drained to EOF even
// after a write to w fails. The first write error is returned.
func copyLines(w io.Writer, r io.Reader) error {
	br := bufio.NewReaderSize(r, 64<<10)
	var copyErr error
	for {
		line, err := br.ReadSlice('\n')
		if len(line) > 0 && copyErr == nil {
			_, copyErr = w.Write(line)
		}
		switch err {
		case nil, bufio.ErrBufferFull:
		case io.EOF:
			return copyErr
		default:
			if copyErr == nil {
				copyErr = err
			}
			return copyErr
		}
	}
}
