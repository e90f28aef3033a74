package handlers

import (
	"context"

	"github.com/gemihub/gemiflow/internal/engine"
	"github.com/gemihub/gemiflow/internal/services"
	"github.com/gemihub/gemiflow/internal/template"
	"github.com/gemihub/gemiflow/pkg/schema"
)

// Drive returns the handlers for the non-interactive drive node kinds.
// The interactive drive-file-picker lives with the other prompt handlers.
func Drive() []engine.Handler {
	return []engine.Handler{
		&DriveFileHandler{},
		&DriveReadHandler{},
		&DriveSearchHandler{},
		&DriveListHandler{},
		&DriveFolderListHandler{},
		&DriveSaveHandler{},
		&DriveDeleteHandler{},
	}
}

// DriveFileHandler creates a file and announces it on the stream.
type DriveFileHandler struct{}

func (h *DriveFileHandler) Kind() schema.NodeType { return schema.NodeDriveFile }

func (h *DriveFileHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.DriveFileProps)
	name, err := template.Resolve(props.Name, nc.Variables)
	if err != nil {
		return nil, err
	}
	content, err := template.Resolve(props.Content, nc.Variables)
	if err != nil {
		return nil, err
	}
	folderID, err := template.Resolve(props.FolderID, nc.Variables)
	if err != nil {
		return nil, err
	}

	file, err := nc.Services.Drive.CreateFile(ctx, name, content, folderID)
	if err != nil {
		return nil, err
	}
	nc.Publish(schema.Event{
		Type: schema.EventDriveFileCreated,
		File: &schema.DriveChange{FileID: file.ID, FileName: file.Name, Content: content},
	})
	return &engine.Result{
		Input:   map[string]any{"name": name, "folderId": folderID},
		Output:  file.ID,
		SaveTo:  props.SaveTo,
		Summary: "created " + file.Name,
	}, nil
}

// DriveReadHandler reads a file's content.
type DriveReadHandler struct{}

func (h *DriveReadHandler) Kind() schema.NodeType { return schema.NodeDriveRead }

func (h *DriveReadHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.DriveReadProps)
	fileID, err := template.Resolve(props.FileID, nc.Variables)
	if err != nil {
		return nil, err
	}
	content, err := nc.Services.Drive.ReadFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return &engine.Result{
		Input:   map[string]any{"fileId": fileID},
		Output:  content,
		SaveTo:  props.SaveTo,
		Summary: "read " + fileID,
	}, nil
}

// DriveSearchHandler searches files by full-text query.
type DriveSearchHandler struct{}

func (h *DriveSearchHandler) Kind() schema.NodeType { return schema.NodeDriveSearch }

func (h *DriveSearchHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.DriveSearchProps)
	query, err := template.Resolve(props.Query, nc.Variables)
	if err != nil {
		return nil, err
	}
	files, err := nc.Services.Drive.SearchFiles(ctx, query)
	if err != nil {
		return nil, err
	}
	return &engine.Result{
		Input:  map[string]any{"query": query},
		Output: filesToValues(files),
		SaveTo: props.SaveTo,
	}, nil
}

// DriveListHandler lists files, optionally scoped to one folder.
type DriveListHandler struct{}

func (h *DriveListHandler) Kind() schema.NodeType { return schema.NodeDriveList }

func (h *DriveListHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.DriveListProps)
	folderID, err := template.Resolve(props.FolderID, nc.Variables)
	if err != nil {
		return nil, err
	}
	files, err := nc.Services.Drive.ListFiles(ctx, folderID)
	if err != nil {
		return nil, err
	}
	return &engine.Result{
		Input:  map[string]any{"folderId": folderID},
		Output: filesToValues(files),
		SaveTo: props.SaveTo,
	}, nil
}

// DriveFolderListHandler lists folders.
type DriveFolderListHandler struct{}

func (h *DriveFolderListHandler) Kind() schema.NodeType { return schema.NodeDriveFolderList }

func (h *DriveFolderListHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.DriveFolderListProps)
	folders, err := nc.Services.Drive.ListFolders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(folders))
	for _, f := range folders {
		out = append(out, map[string]any{"id": f.ID, "name": f.Name})
	}
	return &engine.Result{Output: out, SaveTo: props.SaveTo}, nil
}

// DriveSaveHandler overwrites a file's content and announces the change.
type DriveSaveHandler struct{}

func (h *DriveSaveHandler) Kind() schema.NodeType { return schema.NodeDriveSave }

func (h *DriveSaveHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.DriveSaveProps)
	fileID, err := template.Resolve(props.FileID, nc.Variables)
	if err != nil {
		return nil, err
	}
	content, err := template.Resolve(props.Content, nc.Variables)
	if err != nil {
		return nil, err
	}

	file, err := nc.Services.Drive.SaveFile(ctx, fileID, content)
	if err != nil {
		return nil, err
	}
	nc.Publish(schema.Event{
		Type: schema.EventDriveFileUpdated,
		File: &schema.DriveChange{FileID: file.ID, FileName: file.Name, Content: content},
	})
	return &engine.Result{
		Input:   map[string]any{"fileId": fileID},
		Output:  file.ID,
		SaveTo:  props.SaveTo,
		Summary: "saved " + file.Name,
	}, nil
}

// DriveDeleteHandler deletes a file.
type DriveDeleteHandler struct{}

func (h *DriveDeleteHandler) Kind() schema.NodeType { return schema.NodeDriveDelete }

func (h *DriveDeleteHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.DriveDeleteProps)
	fileID, err := template.Resolve(props.FileID, nc.Variables)
	if err != nil {
		return nil, err
	}
	if err := nc.Services.Drive.DeleteFile(ctx, fileID); err != nil {
		return nil, err
	}
	return &engine.Result{
		Input:   map[string]any{"fileId": fileID},
		Output:  fileID,
		Summary: "deleted " + fileID,
	}, nil
}

func filesToValues(files []services.DriveFile) []any {
	out := make([]any, 0, len(files))
	for _, f := range files {
		out = append(out, map[string]any{
			"id":       f.ID,
			"name":     f.Name,
			"folderId": f.FolderID,
			"size":     f.Size,
		})
	}
	return out
}
