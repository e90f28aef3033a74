// Package services defines the contracts for external collaborators the
// node handlers call into: the Drive document store, the Gemini workspace
// gateway and MCP tool servers. Implementations are injected at wiring time
// so tests can swap in fakes.
package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gemihub/gemiflow/pkg/schema"
)

// DriveFile is the document metadata the Drive contract exchanges.
type DriveFile struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	FolderID string    `json:"folderId,omitempty"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// DriveFolder is a folder entry returned by ListFolders.
type DriveFolder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Drive is the document store the drive-* nodes operate on.
type Drive interface {
	CreateFile(ctx context.Context, name, content, folderID string) (*DriveFile, error)
	ReadFile(ctx context.Context, fileID string) (string, error)
	SaveFile(ctx context.Context, fileID, content string) (*DriveFile, error)
	DeleteFile(ctx context.Context, fileID string) error
	SearchFiles(ctx context.Context, query string) ([]DriveFile, error)
	ListFiles(ctx context.Context, folderID string) ([]DriveFile, error)
	ListFolders(ctx context.Context) ([]DriveFolder, error)
}

// MemoryDrive is an in-process Drive used in local mode and in tests.
type MemoryDrive struct {
	mu      sync.RWMutex
	files   map[string]*memoryFile
	folders map[string]string
}

type memoryFile struct {
	meta    DriveFile
	content string
}

func NewMemoryDrive() *MemoryDrive {
	return &MemoryDrive{
		files:   make(map[string]*memoryFile),
		folders: make(map[string]string),
	}
}

// AddFolder registers a folder so files can be grouped under it.
func (d *MemoryDrive) AddFolder(name string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := uuid.NewString()
	d.folders[id] = name
	return id
}

func (d *MemoryDrive) CreateFile(_ context.Context, name, content, folderID string) (*DriveFile, error) {
	if strings.TrimSpace(name) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "drive: file name is empty")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	f := &memoryFile{
		meta: DriveFile{
			ID:       uuid.NewString(),
			Name:     name,
			FolderID: folderID,
			Size:     int64(len(content)),
			Modified: time.Now().UTC(),
		},
		content: content,
	}
	d.files[f.meta.ID] = f
	meta := f.meta
	return &meta, nil
}

func (d *MemoryDrive) ReadFile(_ context.Context, fileID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.files[fileID]
	if !ok {
		return "", schema.NewErrorf(schema.ErrCodeNotFound, "drive: file %q not found", fileID)
	}
	return f.content, nil
}

func (d *MemoryDrive) SaveFile(_ context.Context, fileID, content string) (*DriveFile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[fileID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "drive: file %q not found", fileID)
	}
	f.content = content
	f.meta.Size = int64(len(content))
	f.meta.Modified = time.Now().UTC()
	meta := f.meta
	return &meta, nil
}

func (d *MemoryDrive) DeleteFile(_ context.Context, fileID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.files[fileID]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "drive: file %q not found", fileID)
	}
	delete(d.files, fileID)
	return nil
}

// SearchFiles matches the query case-insensitively against file names and
// content.
func (d *MemoryDrive) SearchFiles(_ context.Context, query string) ([]DriveFile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	q := strings.ToLower(query)
	var out []DriveFile
	for _, f := range d.files {
		if strings.Contains(strings.ToLower(f.meta.Name), q) ||
			strings.Contains(strings.ToLower(f.content), q) {
			out = append(out, f.meta)
		}
	}
	sortFiles(out)
	return out, nil
}

func (d *MemoryDrive) ListFiles(_ context.Context, folderID string) ([]DriveFile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []DriveFile
	for _, f := range d.files {
		if folderID == "" || f.meta.FolderID == folderID {
			out = append(out, f.meta)
		}
	}
	sortFiles(out)
	return out, nil
}

func (d *MemoryDrive) ListFolders(_ context.Context) ([]DriveFolder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]DriveFolder, 0, len(d.folders))
	for id, name := range d.folders {
		out = append(out, DriveFolder{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func sortFiles(files []DriveFile) {
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
}
