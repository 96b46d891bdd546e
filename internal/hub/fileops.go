package hub

import (
	"fmt"
	"os"
	"path/filepath"
)

// Op kinds for FileOp.
const (
	OpAppend    = "append"
	OpCreate    = "create"
	OpOverwrite = "overwrite"
)

// FileOp is one planned write. A run first collects its ops and then applies
// them in order, so callers can inspect or report the plan without touching
// disk.
type FileOp struct {
	Op      string `json:"op"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(content)
	return err
}

// Apply executes ops sequentially, creating parent directories as needed.
// A create against an existing file degrades to an append.
func Apply(ops []FileOp) error {
	for _, op := range ops {
		if err := os.MkdirAll(filepath.Dir(op.Path), 0o755); err != nil {
			return fmt.Errorf("apply %s %s: %w", op.Op, op.Path, err)
		}
		var err error
		switch op.Op {
		case OpAppend:
			err = appendFile(op.Path, op.Content)
		case OpCreate:
			f, openErr := os.OpenFile(op.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
			if openErr != nil {
				if os.IsExist(openErr) {
					err = appendFile(op.Path, op.Content)
					break
				}
				err = openErr
				break
			}
			_, err = f.WriteString(op.Content)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
		default:
			err = os.WriteFile(op.Path, []byte(op.Content), 0o644)
		}
		if err != nil {
			return fmt.Errorf("apply %s %s: %w", op.Op, op.Path, err)
		}
	}
	return nil
}

// AppendLine guarantees a trailing newline on a single appended entry.
func AppendLine(value string) string {
	if len(value) > 0 && value[len(value)-1] == '\n' {
		return value
	}
	return value + "\n"
}

// ReadText returns the file's content, or "" with ok=false when unreadable.
func ReadText(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}
