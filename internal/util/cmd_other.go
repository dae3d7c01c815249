//go:build !unix

package util

import "os/exec"

// killProcessGroupOnCancel keeps exec's default of killing the direct child.
func killProcessGroupOnCancel(*exec.Cmd) {}
