package clipboard

import (
	"errors"
	"testing"
)

func TestDetectDarwin(t *testing.T) {
	tool, err := Detect("darwin", func(name string) (string, error) {
		if name == "pbcopy" {
			return "/usr/bin/pbcopy", nil
		}
		return "", errors.New("not found")
	})
	if err != nil {
		t.Fatalf("expected tool, got error: %v", err)
	}
	if tool.Path != "/usr/bin/pbcopy" {
		t.Fatalf("unexpected path: %s", tool.Path)
	}
	if len(tool.Args) != 0 {
		t.Fatalf("did not expect args for pbcopy: %#v", tool.Args)
	}
}

func TestDetectLinuxPrefersWlCopy(t *testing.T) {
	tool, err := Detect("linux", func(name string) (string, error) {
		switch name {
		case "wl-copy":
			return "/usr/bin/wl-copy", nil
		case "xclip":
			return "/usr/bin/xclip", nil
		default:
			return "", errors.New("not found")
		}
	})
	if err != nil {
		t.Fatalf("expected tool, got error: %v", err)
	}
	if tool.Path != "/usr/bin/wl-copy" {
		t.Fatalf("expected wl-copy, got %q", tool.Path)
	}
}

func TestDetectLinuxFallsBackToXclip(t *testing.T) {
	tool, err := Detect("linux", func(name string) (string, error) {
		if name == "xclip" {
			return "/usr/bin/xclip", nil
		}
		return "", errors.New("not found")
	})
	if err != nil {
		t.Fatalf("expected tool, got error: %v", err)
	}
	if tool.Path != "/usr/bin/xclip" {
		t.Fatalf("expected xclip, got %q", tool.Path)
	}
	if len(tool.Args) != 2 || tool.Args[0] != "-selection" || tool.Args[1] != "clipboard" {
		t.Fatalf("unexpected xclip args: %#v", tool.Args)
	}
}

func TestDetectLinuxFallsBackToXsel(t *testing.T) {
	tool, err := Detect("linux", func(name string) (string, error) {
		if name == "xsel" {
			return "/usr/bin/xsel", nil
		}
		return "", errors.New("not found")
	})
	if err != nil {
		t.Fatalf("expected tool, got error: %v", err)
	}
	if tool.Path != "/usr/bin/xsel" {
		t.Fatalf("expected xsel, got %q", tool.Path)
	}
}

func TestDetectUnavailable(t *testing.T) {
	_, err := Detect("linux", func(string) (string, error) {
		return "", errors.New("not found")
	})
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}
