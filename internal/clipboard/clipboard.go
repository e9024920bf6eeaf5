// Package clipboard shells out to the platform clipboard tool. Keeping this
// external avoids cgo and works over SSH where wl-copy/xclip are present.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
)

var ErrToolNotFound = errors.New("clipboard tool not found")

type Tool struct {
	Path string
	Args []string
}

// Detect picks the clipboard command for the platform: pbcopy on macOS,
// wl-copy then xclip then xsel on Linux.
func Detect(goos string, lookPath func(string) (string, error)) (Tool, error) {
	switch goos {
	case "darwin":
		path, err := lookPath("pbcopy")
		if err != nil {
			return Tool{}, ErrToolNotFound
		}
		return Tool{Path: path}, nil
	case "linux":
		if path, err := lookPath("wl-copy"); err == nil {
			return Tool{Path: path}, nil
		}
		if path, err := lookPath("xclip"); err == nil {
			return Tool{Path: path, Args: []string{"-selection", "clipboard"}}, nil
		}
		if path, err := lookPath("xsel"); err == nil {
			return Tool{Path: path, Args: []string{"--clipboard", "--input"}}, nil
		}
		return Tool{}, ErrToolNotFound
	default:
		return Tool{}, ErrToolNotFound
	}
}

func Copy(ctx context.Context, text string) error {
	tool, err := Detect(runtime.GOOS, exec.LookPath)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, tool.Path, tool.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("clipboard stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start clipboard command: %w", err)
	}

	if _, err := stdin.Write([]byte(text)); err != nil {
		_ = stdin.Close()
		_ = cmd.Wait()
		return fmt.Errorf("write clipboard data: %w", err)
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("clipboard command failed: %w", err)
	}
	return nil
}
