package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ashita-ai/jikko/internal/registry"
)

type readFile struct{}

func (readFile) Name() string { return "read-file" }

func (readFile) Description() string {
	return "To read the contents of a file from disk:"
}

func (readFile) ExamplePayload() *string { return strPtr("/path/to/file/to/read") }

func (readFile) ExampleAttributes() map[string]string { return nil }

func (readFile) Run(_ context.Context, _ registry.RunState, _ map[string]string, payload *string) (*string, error) {
	path, err := payloadOf(payload)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("actions: read %s: %w", path, err)
	}
	contents := string(data)
	return &contents, nil
}

type listFolder struct{}

func (listFolder) Name() string { return "list-folder" }

func (listFolder) Description() string {
	return "To list the contents of a folder in ls style:"
}

func (listFolder) ExamplePayload() *string { return strPtr("/path/to/folder") }

func (listFolder) ExampleAttributes() map[string]string { return nil }

func (listFolder) Run(_ context.Context, _ registry.RunState, _ map[string]string, payload *string) (*string, error) {
	folder, err := payloadOf(payload)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("actions: list %s: %w", folder, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Contents of %s :\n\n", folder)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// The entry disappeared between ReadDir and Info; skip it.
			continue
		}
		fmt.Fprintf(&b, "%s %6d %s [%s] %s\n",
			info.Mode().String(),
			info.Size(),
			info.ModTime().Format("2 Jan 15:04"),
			entryType(entry),
			filepath.Join(folder, entry.Name()),
		)
	}

	out := b.String()
	return &out, nil
}

func entryType(entry os.DirEntry) string {
	switch {
	case entry.Type()&os.ModeSymlink != 0:
		return "symlink"
	case entry.IsDir():
		return "dir"
	case entry.Type().IsRegular():
		return "file"
	default:
		return "other"
	}
}

func filesystemNamespace() registry.Namespace {
	return registry.Namespace{
		Name:        "filesystem",
		Description: "Use these actions to explore the filesystem.",
		Actions:     []registry.Action{readFile{}, listFolder{}},
	}
}
