package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gemihub/gemiflow/pkg/schema"
)

func TestMemoryDriveLifecycle(t *testing.T) {
	d := NewMemoryDrive()
	ctx := context.Background()

	file, err := d.CreateFile(ctx, "report.md", "quarterly numbers", "")
	require.NoError(t, err)
	assert.NotEmpty(t, file.ID)
	assert.Equal(t, "report.md", file.Name)

	content, err := d.ReadFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "quarterly numbers", content)

	saved, err := d.SaveFile(ctx, file.ID, "updated")
	require.NoError(t, err)
	assert.Equal(t, file.ID, saved.ID)

	content, err = d.ReadFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", content)

	require.NoError(t, d.DeleteFile(ctx, file.ID))
	_, err = d.ReadFile(ctx, file.ID)
	assert.Error(t, err)
}

func TestMemoryDriveCreateEmptyName(t *testing.T) {
	d := NewMemoryDrive()

	_, err := d.CreateFile(context.Background(), "", "x", "")
	require.Error(t, err)

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
}

func TestMemoryDriveNotFoundErrors(t *testing.T) {
	d := NewMemoryDrive()
	ctx := context.Background()

	_, err := d.ReadFile(ctx, "ghost")
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeNotFound, fe.Code)

	_, err = d.SaveFile(ctx, "ghost", "x")
	assert.Error(t, err)
	assert.Error(t, d.DeleteFile(ctx, "ghost"))
}

func TestMemoryDriveSearch(t *testing.T) {
	d := NewMemoryDrive()
	ctx := context.Background()

	_, err := d.CreateFile(ctx, "Report.md", "quarterly numbers", "")
	require.NoError(t, err)
	_, err = d.CreateFile(ctx, "todo.md", "buy milk", "")
	require.NoError(t, err)

	// Matches name, case-insensitive.
	files, err := d.SearchFiles(ctx, "report")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "Report.md", files[0].Name)

	// Matches content.
	files, err = d.SearchFiles(ctx, "MILK")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "todo.md", files[0].Name)

	files, err = d.SearchFiles(ctx, "nothing here")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestMemoryDriveListScoping(t *testing.T) {
	d := NewMemoryDrive()
	ctx := context.Background()

	folderID := d.AddFolder("projects")
	_, err := d.CreateFile(ctx, "inside.md", "", folderID)
	require.NoError(t, err)
	_, err = d.CreateFile(ctx, "outside.md", "", "")
	require.NoError(t, err)

	all, err := d.ListFiles(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := d.ListFiles(ctx, folderID)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "inside.md", scoped[0].Name)

	folders, err := d.ListFolders(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.Equal(t, "projects", folders[0].Name)
}
