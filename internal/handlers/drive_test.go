package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gemihub/gemiflow/internal/services"
	"github.com/gemihub/gemiflow/pkg/schema"
)

func TestDriveFileCreateAndRead(t *testing.T) {
	nc := testContext(t, testNode(schema.NodeDriveFile, &schema.DriveFileProps{
		Name:    "notes-{{day}}.md",
		Content: "hello",
		SaveTo:  "fileId",
	}), map[string]any{"day": "monday"})

	var published []schema.Event
	nc.Publish = func(ev schema.Event) { published = append(published, ev) }

	res, err := (&DriveFileHandler{}).Execute(context.Background(), nc)
	require.NoError(t, err)
	fileID, ok := res.Output.(string)
	require.True(t, ok)
	assert.NotEmpty(t, fileID)
	assert.Equal(t, "fileId", res.SaveTo)

	require.Len(t, published, 1)
	assert.Equal(t, schema.EventDriveFileCreated, published[0].Type)
	require.NotNil(t, published[0].File)
	assert.Equal(t, "notes-monday.md", published[0].File.FileName)

	readNC := testContext(t, testNode(schema.NodeDriveRead, &schema.DriveReadProps{
		FileID: "{{fileId}}",
		SaveTo: "content",
	}), map[string]any{"fileId": fileID})
	readNC.Services = nc.Services

	readRes, err := (&DriveReadHandler{}).Execute(context.Background(), readNC)
	require.NoError(t, err)
	assert.Equal(t, "hello", readRes.Output)
}

func TestDriveReadMissingFile(t *testing.T) {
	nc := testContext(t, testNode(schema.NodeDriveRead, &schema.DriveReadProps{FileID: "ghost"}), nil)

	_, err := (&DriveReadHandler{}).Execute(context.Background(), nc)
	require.Error(t, err)

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeNotFound, fe.Code)
}

func TestDriveSaveAnnouncesUpdate(t *testing.T) {
	nc := testContext(t, testNode(schema.NodeDriveFile, &schema.DriveFileProps{Name: "a.txt", Content: "v1"}), nil)
	res, err := (&DriveFileHandler{}).Execute(context.Background(), nc)
	require.NoError(t, err)
	fileID := res.Output.(string)

	saveNC := testContext(t, testNode(schema.NodeDriveSave, &schema.DriveSaveProps{
		FileID:  fileID,
		Content: "v2",
	}), nil)
	saveNC.Services = nc.Services

	var published []schema.Event
	saveNC.Publish = func(ev schema.Event) { published = append(published, ev) }

	_, err = (&DriveSaveHandler{}).Execute(context.Background(), saveNC)
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, schema.EventDriveFileUpdated, published[0].Type)
	assert.Equal(t, "v2", published[0].File.Content)

	content, err := nc.Services.Drive.ReadFile(context.Background(), fileID)
	require.NoError(t, err)
	assert.Equal(t, "v2", content)
}

func TestDriveDelete(t *testing.T) {
	nc := testContext(t, testNode(schema.NodeDriveFile, &schema.DriveFileProps{Name: "a.txt"}), nil)
	res, err := (&DriveFileHandler{}).Execute(context.Background(), nc)
	require.NoError(t, err)
	fileID := res.Output.(string)

	delNC := testContext(t, testNode(schema.NodeDriveDelete, &schema.DriveDeleteProps{FileID: fileID}), nil)
	delNC.Services = nc.Services

	_, err = (&DriveDeleteHandler{}).Execute(context.Background(), delNC)
	require.NoError(t, err)

	_, err = nc.Services.Drive.ReadFile(context.Background(), fileID)
	assert.Error(t, err)
}

func TestDriveSearchAndList(t *testing.T) {
	nc := testContext(t, testNode(schema.NodeDriveFile, &schema.DriveFileProps{Name: "report.md", Content: "quarterly numbers"}), nil)
	_, err := (&DriveFileHandler{}).Execute(context.Background(), nc)
	require.NoError(t, err)

	nc2 := testContext(t, testNode(schema.NodeDriveFile, &schema.DriveFileProps{Name: "todo.md", Content: "buy milk"}), nil)
	nc2.Services = nc.Services
	_, err = (&DriveFileHandler{}).Execute(context.Background(), nc2)
	require.NoError(t, err)

	searchNC := testContext(t, testNode(schema.NodeDriveSearch, &schema.DriveSearchProps{
		Query:  "quarterly",
		SaveTo: "hits",
	}), nil)
	searchNC.Services = nc.Services

	res, err := (&DriveSearchHandler{}).Execute(context.Background(), searchNC)
	require.NoError(t, err)
	hits, ok := res.Output.([]any)
	require.True(t, ok)
	require.Len(t, hits, 1)
	assert.Equal(t, "report.md", hits[0].(map[string]any)["name"])

	listNC := testContext(t, testNode(schema.NodeDriveList, &schema.DriveListProps{}), nil)
	listNC.Services = nc.Services

	res, err = (&DriveListHandler{}).Execute(context.Background(), listNC)
	require.NoError(t, err)
	assert.Len(t, res.Output.([]any), 2)
}

func TestDriveFolderList(t *testing.T) {
	nc := testContext(t, testNode(schema.NodeDriveFolderList, &schema.DriveFolderListProps{SaveTo: "folders"}), nil)
	nc.Services.Drive.(*services.MemoryDrive).AddFolder("projects")

	res, err := (&DriveFolderListHandler{}).Execute(context.Background(), nc)
	require.NoError(t, err)
	folders := res.Output.([]any)
	require.Len(t, folders, 1)
	assert.Equal(t, "projects", folders[0].(map[string]any)["name"])
	assert.Equal(t, "folders", res.SaveTo)
}
