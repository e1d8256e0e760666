package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/gmsas95/moneychat/internal/finance"
	"github.com/gmsas95/moneychat/internal/importer"
	"github.com/gmsas95/moneychat/internal/store"
)

// ImportOptions controls RunImport
type ImportOptions struct {
	Path   string
	UserID string
	// Yes confirms without asking
	Yes bool
}

func lastFileKey(userID string) string {
	return "lastfile:" + userID
}

// RunImport previews a spreadsheet file and, once confirmed, imports it.
// The metadata of the last imported file is kept per user so a re-import
// of the same file is caught by the duplicate check.
func (app *App) RunImport(ctx context.Context, opts ImportOptions, in io.Reader, out io.Writer) error {
	user := opts.UserID
	if user == "" {
		user = app.cliUser()
	}

	info, err := os.Stat(opts.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", opts.Path, err)
	}
	data, err := os.ReadFile(opts.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", opts.Path, err)
	}

	meta := &finance.FileMeta{
		Name:         filepath.Base(opts.Path),
		SizeBytes:    info.Size(),
		MimeType:     "text/csv",
		LastModified: info.ModTime().UnixMilli(),
	}
	msg := finance.IncomingMessage{
		UserID:       user,
		Text:         importer.Marker + "\n" + string(data),
		Mode:         finance.ModeCSVImport,
		FileInfo:     meta,
		PreviousFile: app.previousFile(user),
	}

	preview, err := app.Chat.Handle(ctx, msg)
	if err != nil {
		return err
	}
	printResponse(out, preview)

	if preview.IsDuplicate && !opts.Yes {
		return nil
	}
	if !opts.Yes && !confirm(in, out) {
		fmt.Fprintln(out, "Import cancelled.")
		return nil
	}

	msg.Mode = finance.ModeCSVImportConfirm
	result, err := app.Chat.Handle(ctx, msg)
	if err != nil {
		return err
	}
	printResponse(out, result)

	app.rememberFile(user, meta)
	return nil
}

func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "Import these transactions? (y/N): ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func (app *App) previousFile(userID string) *finance.FileMeta {
	raw, err := app.Store.KV().Get(lastFileKey(userID))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			app.Logger.Warn("Failed to read last imported file", zap.String("user_id", userID), zap.Error(err))
		}
		return nil
	}

	var meta finance.FileMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		app.Logger.Warn("Discarding unreadable last-file record", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	return &meta
}

func (app *App) rememberFile(userID string, meta *finance.FileMeta) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return
	}
	if err := app.Store.KV().Set(lastFileKey(userID), raw, 0); err != nil {
		app.Logger.Warn("Failed to remember imported file", zap.String("user_id", userID), zap.Error(err))
	}
}
