package tool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	defaultMaxAttachmentBytes = 50 * 1024 * 1024
	defaultMaxReadChars       = 20000
)

// AttachmentsConfig configures where session files live.
type AttachmentsConfig struct {
	Dir          string // base directory, one subdirectory per session
	MaxSizeBytes int64  // max stored file size (default: 50MB)
	Logger       *slog.Logger
}

// Attachments stores files uploaded into a session and reads them back.
type Attachments struct {
	dir          string
	maxSizeBytes int64
	logger       *slog.Logger
}

func NewAttachments(cfg AttachmentsConfig) (*Attachments, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("attachments directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment storage: %w", err)
	}
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = defaultMaxAttachmentBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Attachments{dir: cfg.Dir, maxSizeBytes: cfg.MaxSizeBytes, logger: cfg.Logger}, nil
}

// Store writes a file into the session's directory and returns its stored
// name, which is what callers list in the run's files.
func (a *Attachments) Store(sessionID, filename string, r io.Reader) (string, error) {
	name := filepath.Base(filepath.Clean(filename))
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid file name %q", filename)
	}
	sessionDir, err := resolvePath(a.dir, sessionDirName(sessionID))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return "", fmt.Errorf("create session directory: %w", err)
	}

	path := filepath.Join(sessionDir, name)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	written, err := io.Copy(out, io.LimitReader(r, a.maxSizeBytes+1))
	out.Close()
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write file: %w", err)
	}
	if written > a.maxSizeBytes {
		os.Remove(path)
		return "", fmt.Errorf("file too large: %d bytes (max: %d)", written, a.maxSizeBytes)
	}

	a.logger.Info("file stored", "session", sessionID, "filename", name, "size", written)
	return name, nil
}

// ReadText returns the text of a session file. Binary files yield a short
// description instead of their bytes.
func (a *Attachments) ReadText(sessionID, filename string) (string, error) {
	path, err := resolvePath(filepath.Join(a.dir, sessionDirName(sessionID)), filepath.Base(filename))
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if isTextType(mimeType) || (mimeType == "" && utf8.Valid(data)) {
		return string(data), nil
	}
	return fmt.Sprintf("[Binary file: %s, size: %d bytes, type: %s]", filepath.Base(path), len(data), mimeType), nil
}

func isTextType(mimeType string) bool {
	mt := strings.ToLower(mimeType)
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = mt[:i]
	}
	switch {
	case strings.HasPrefix(mt, "text/"),
		mt == "application/json",
		mt == "application/xml",
		mt == "application/csv",
		mt == "application/x-yaml":
		return true
	}
	return false
}

// sessionDirName maps a session id onto a single path element.
func sessionDirName(sessionID string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	if s := r.Replace(sessionID); s != "" {
		return s
	}
	return "_"
}

// resolvePath resolves a file path relative to base and prevents traversal.
func resolvePath(base, path string) (string, error) {
	path = strings.TrimSpace(path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	resolved, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	baseAbs, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolve base: %w", err)
	}
	if !strings.HasPrefix(resolved, baseAbs+string(filepath.Separator)) && resolved != baseAbs {
		return "", fmt.Errorf("path %q is outside %q", resolved, baseAbs)
	}
	return resolved, nil
}

// DocumentReaderTool reads the files attached to the current session.
type DocumentReaderTool struct {
	attachments *Attachments
	sessionID   string
	files       []string
	maxChars    int
}

func NewDocumentReaderTool(attachments *Attachments, sessionID string, files []string) *DocumentReaderTool {
	return &DocumentReaderTool{
		attachments: attachments,
		sessionID:   sessionID,
		files:       files,
		maxChars:    defaultMaxReadChars,
	}
}

func (t *DocumentReaderTool) Name() string { return "Document Reader Tool" }
func (t *DocumentReaderTool) Description() string {
	return "Useful for reading the documents the user uploaded in this conversation. " +
		"The action input is the file name; leave it empty to read the only uploaded file."
}
func (t *DocumentReaderTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{InputKey: {Type: "string", Description: "Uploaded file name"}}, nil)
}

func (t *DocumentReaderTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if len(t.files) == 0 {
		return "No documents have been uploaded in this conversation.", nil
	}

	name := strings.Trim(strings.TrimSpace(ArgsString(args, InputKey)), "\"'`")
	if name == "" {
		if len(t.files) > 1 {
			return "Several documents are uploaded, name one of: " + strings.Join(t.files, ", "), nil
		}
		name = t.files[0]
	}
	if !t.attached(name) {
		return fmt.Sprintf("%q is not uploaded in this conversation. Uploaded: %s", name, strings.Join(t.files, ", ")), nil
	}

	text, err := t.attachments.ReadText(t.sessionID, name)
	if err != nil {
		return "", err
	}
	if r := []rune(text); len(r) > t.maxChars {
		text = string(r[:t.maxChars]) + "\n... (truncated)"
	}
	return text, nil
}

func (t *DocumentReaderTool) attached(name string) bool {
	for _, f := range t.files {
		if f == name || filepath.Base(f) == name {
			return true
		}
	}
	return false
}
