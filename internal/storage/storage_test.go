package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "ticket_images/a.jpg", want: "ticket_images/a.jpg"},
		{in: "profile_images/./u1.jpg", want: "profile_images/u1.jpg"},
		{in: "", wantErr: true},
		{in: "/etc/passwd", wantErr: true},
		{in: "../secret", wantErr: true},
		{in: "a/../../secret", wantErr: true},
		{in: `a\b`, wantErr: true},
	}
	for _, tt := range tests {
		got, err := cleanPath(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidPath) {
				t.Errorf("cleanPath(%q) err = %v, want ErrInvalidPath", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("cleanPath(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestLocalStorage_PutDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocalStorage(dir, "http://localhost:8080/uploads/")
	if err != nil {
		t.Fatal(err)
	}

	url, err := s.Put(ctx, "ticket_images/abc.jpg", strings.NewReader("jpeg"), "image/jpeg")
	if err != nil {
		t.Fatal(err)
	}
	if url != "http://localhost:8080/uploads/ticket_images/abc.jpg" {
		t.Errorf("url = %q", url)
	}
	data, err := os.ReadFile(filepath.Join(dir, "ticket_images", "abc.jpg"))
	if err != nil || string(data) != "jpeg" {
		t.Fatalf("stored content = %q, %v", data, err)
	}

	if err := s.Delete(ctx, "ticket_images/abc.jpg"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "ticket_images/abc.jpg"); err != nil {
		t.Errorf("deleting a missing object: %v", err)
	}
	if _, err := s.Put(ctx, "../escape.jpg", strings.NewReader("x"), "image/jpeg"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("traversal put = %v", err)
	}
}

func TestDownloadURL(t *testing.T) {
	got := downloadURL("uticket.appspot.com", "profile_images/u1.jpg", "tok")
	want := "https://firebasestorage.googleapis.com/v0/b/uticket.appspot.com/o/profile_images%2Fu1.jpg?alt=media&token=tok"
	if got != want {
		t.Errorf("downloadURL = %q, want %q", got, want)
	}
}
