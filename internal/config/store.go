// Package config owns clawkeeper's persisted state: its own settings
// document, the optional TOML preferences, and the generic JSON document
// store the rest of the code reads and writes through.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	. "github.com/roelfdiedericks/clawkeeper/internal/logging"
)

// Error classes shared by everything that touches config documents.
var (
	// ErrCorrupt marks a document that exists on disk but cannot be parsed.
	ErrCorrupt = errors.New("corrupt config document")

	// ErrUnconfigured marks a required setting that has not been provided.
	ErrUnconfigured = errors.New("not configured")
)

// DefaultBackupCount is the number of backup versions kept per document.
const DefaultBackupCount = 5

// ReadDocument loads a JSON document from path into out.
// A missing file is not an error: found is false and out is left as-is.
// A file that exists but cannot be parsed wraps ErrCorrupt.
func ReadDocument(path string, out interface{}) (found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return true, fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
	}
	return true, nil
}

// WriteDocument atomically writes a JSON document with owner-only perms.
func WriteDocument(path string, doc interface{}) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return AtomicWrite(path, data, 0600)
}

// WriteDocumentWithBackup rotates the existing file into the backup chain
// before writing. Backup failure is logged but never blocks the save.
func WriteDocumentWithBackup(path string, doc interface{}) error {
	if _, err := os.Stat(path); err == nil {
		if err := backupCurrent(path, DefaultBackupCount); err != nil {
			L_warn("config: backup failed, continuing with save", "error", err)
		}
	}
	if err := WriteDocument(path, doc); err != nil {
		return err
	}
	L_debug("config: saved", "path", path)
	return nil
}

// AtomicWrite writes data to path via a temp file in the same directory
// followed by a rename, so readers never observe a half-written document.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Temp file must live on the same filesystem for the rename to be atomic
	tmp, err := os.CreateTemp(filepath.Dir(path), ".clawkeeper-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp to target: %w", err)
	}

	success = true
	return nil
}

// BackupInfo describes one entry in a document's backup chain.
type BackupInfo struct {
	Path    string    // Full path to backup file
	Index   int       // 0 = .bak (newest), 1 = .bak.1, etc.
	ModTime time.Time // Last modification time
	Size    int64     // File size in bytes
}

// backupCurrent rotates the chain and copies the live file to .bak.
func backupCurrent(path string, maxBackups int) error {
	rotateBackups(path, maxBackups)
	if err := copyFile(path, path+".bak"); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	L_debug("config: created backup", "path", path+".bak")
	return nil
}

// rotateBackups shifts the chain one slot down: the oldest entry
// (.bak.N) is dropped, .bak becomes .bak.1.
func rotateBackups(path string, maxBackups int) {
	if maxBackups <= 1 {
		return
	}
	base := path + ".bak"
	top := maxBackups - 1

	if err := os.Remove(fmt.Sprintf("%s.%d", base, top)); err != nil && !os.IsNotExist(err) {
		L_trace("config: failed to remove oldest backup", "error", err)
	}
	for i := top - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", base, i)
		dst := fmt.Sprintf("%s.%d", base, i+1)
		if err := os.Rename(src, dst); err != nil && !os.IsNotExist(err) {
			L_trace("config: failed to rotate backup", "src", src, "dst", dst, "error", err)
		}
	}
	if err := os.Rename(base, base+".1"); err != nil && !os.IsNotExist(err) {
		L_trace("config: failed to rotate .bak to .bak.1", "error", err)
	}
}

// ListBackups returns the backup chain for a document, newest first.
func ListBackups(path string) []BackupInfo {
	var backups []BackupInfo
	base := path + ".bak"

	appendInfo := func(p string, index int) bool {
		info, err := os.Stat(p)
		if err != nil {
			return false
		}
		backups = append(backups, BackupInfo{
			Path:    p,
			Index:   index,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
		return true
	}

	appendInfo(base, 0)
	for i := 1; i < 100; i++ {
		if !appendInfo(fmt.Sprintf("%s.%d", base, i), i) {
			break
		}
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].ModTime.After(backups[j].ModTime)
	})
	return backups
}

// RestoreBackup replaces the live document with the backup at index.
// The current file is itself backed up first, so a restore is undoable.
func RestoreBackup(path string, index int) error {
	var backup *BackupInfo
	for _, b := range ListBackups(path) {
		if b.Index == index {
			backup = &b
			break
		}
	}
	if backup == nil {
		return fmt.Errorf("backup index %d not found", index)
	}

	data, err := os.ReadFile(backup.Path)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}

	// Refuse to restore garbage
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: backup %s: %v", ErrCorrupt, backup.Path, err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := backupCurrent(path, DefaultBackupCount); err != nil {
			L_warn("config: failed to backup current before restore", "error", err)
		}
	}

	if err := AtomicWrite(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write restored config: %w", err)
	}

	L_info("config: restored backup", "from", backup.Path, "to", path)
	return nil
}

// copyFile copies src to dst, preserving permissions.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}
