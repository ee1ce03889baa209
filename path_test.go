package tftp

import (
	"path/filepath"
	"testing"
)

func TestSanitizePathAcceptsPlainFilename(t *testing.T) {
	got, err := SanitizePath("/srv/tftp", "boot.img")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := filepath.Abs(filepath.Join("/srv/tftp", "boot.img"))
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitizePathStripsLeadingSlash(t *testing.T) {
	got, err := SanitizePath("/srv/tftp", "/etc/boot.img")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := filepath.Abs(filepath.Join("/srv/tftp", "etc/boot.img"))
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitizePathStripsDriveLetter(t *testing.T) {
	got, err := SanitizePath("/srv/tftp", `C:\boot\image.bin`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := filepath.Abs(filepath.Join("/srv/tftp", "boot/image.bin"))
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitizePathRejectsTraversal(t *testing.T) {
	_, err := SanitizePath("/srv/tftp", "../etc/passwd")
	if err != ErrPathEscape {
		t.Errorf("expected ErrPathEscape, got %v", err)
	}
}

func TestSanitizePathRejectsTraversalMidPath(t *testing.T) {
	_, err := SanitizePath("/srv/tftp", "a/../../etc/passwd")
	if err != ErrPathEscape {
		t.Errorf("expected ErrPathEscape, got %v", err)
	}
}

func TestSanitizePathAcceptsNestedDescendant(t *testing.T) {
	_, err := SanitizePath("/srv/tftp", "firmware/v2/boot.img")
	if err != nil {
		t.Errorf("unexpected error for a legitimate nested path: %v", err)
	}
}
