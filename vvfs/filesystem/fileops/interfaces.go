package fileops

import "context"

// ItemOperations are the single-item mutations a file manager issues.
type ItemOperations interface {
	CreateFile(ctx context.Context, dir, name string) (string, error)
	CreateFolder(ctx context.Context, dir, name string) (string, error)
	DeleteItem(ctx context.Context, path string) error
	RenameItem(ctx context.Context, oldPath, newName string) (string, error)
}

// ContentOperations read and write file contents. Content is opaque text.
type ContentOperations interface {
	ReadText(ctx context.Context, path string) (string, error)
	WriteText(ctx context.Context, path, content string) error
	OpenWithDefaultApp(ctx context.Context, path string) error
}

// BatchOperations copy or move several items into one destination folder.
type BatchOperations interface {
	CopyItems(ctx context.Context, sources []string, destination string) (int, error)
	MoveItems(ctx context.Context, sources []string, destination string) (int, error)
}

// FileOpsInterface combines all file operation interfaces
type FileOpsInterface interface {
	ItemOperations
	ContentOperations
	BatchOperations
}
