package pty

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/kballard/go-shellquote"
)

// resetSequence is emitted by the launch script after the program exits:
// clear screen, cursor home, show cursor. The backslashes stay literal so
// the shell's printf interprets them.
const resetSequence = `\033[2J\033[H\033[?25h`

// LaunchSpec describes the child to run inside the PTY. Program is an
// already-resolved executable path; discovery happens in the config layer.
type LaunchSpec struct {
	// Program is the path of the program to run inside the shell.
	Program string
	// WorkDir, when non-empty, becomes the child's working directory
	// before exec. Needed when the program loads sibling resource files.
	WorkDir string
	// Relative invokes the program as "./name" instead of by its full
	// path. Only meaningful when WorkDir is the program's own directory;
	// some programs resolve their siblings only through relative paths.
	Relative bool
	// Shell overrides the shell used to host the program. Empty means
	// $SHELL, falling back to /bin/sh.
	Shell string
	// Env holds extra KEY=VALUE entries appended to the inherited
	// environment.
	Env []string
}

// shell returns the shell path the session will launch.
func (ls LaunchSpec) shell() string {
	if ls.Shell != "" {
		return ls.Shell
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

// script builds the -c argument: run the program, swallow its exit status,
// reset the terminal, then replace the script shell with a fresh interactive
// one so the user lands in a live shell when the program exits.
func (ls LaunchSpec) script() string {
	prog := ls.Program
	if ls.Relative && ls.WorkDir != "" {
		prog = "./" + filepath.Base(ls.Program)
	}
	return fmt.Sprintf("%s || true; printf '%s'; clear; exec %s",
		shellquote.Join(prog), resetSequence, shellquote.Join(ls.shell()))
}

// command assembles the exec.Cmd bound to the slave end of the PTY.
func (ls LaunchSpec) command(slave *os.File) *exec.Cmd {
	cmd := exec.Command(ls.shell(), "-c", ls.script())
	cmd.Dir = ls.WorkDir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Env = append(cmd.Env, ls.Env...)
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	configureSysProcAttr(cmd)
	return cmd
}
