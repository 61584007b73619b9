package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/accessguard-core/internal/audit"
	"github.com/nerrad567/accessguard-core/internal/backup"
)

// createBackupRequest is the optional body of POST /backups.
type createBackupRequest struct {
	Type string `json:"type"`
}

// restoreFileRequest is the body of POST /backups/restore-file.
type restoreFileRequest struct {
	FileName string `json:"file_name"`
}

// handleListBackups returns every backup without payloads, newest first.
func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	list, err := s.backups.ListBackups(r.Context())
	if err != nil {
		s.logger.Error("listing backups failed", "error", err)
		writeInternalError(w, "failed to list backups")
		return
	}
	if list == nil {
		list = []backup.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"backups": list,
		"count":   len(list),
	})
}

// handleLatestBackup returns the newest backup with its payload.
func (s *Server) handleLatestBackup(w http.ResponseWriter, r *http.Request) {
	rec, err := s.backups.GetLatestBackup(r.Context())
	if err != nil {
		if !writeDomainError(w, err) {
			s.logger.Error("reading latest backup failed", "error", err)
			writeInternalError(w, "failed to read latest backup")
		}
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleBackupStatus returns the backup count and newest backup per type.
func (s *Server) handleBackupStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.backups.Status(r.Context())
	if err != nil {
		s.logger.Error("reading backup status failed", "error", err)
		writeInternalError(w, "failed to read backup status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleCreateBackup takes a snapshot. The type defaults to manual.
// A snapshot that reached only one of its two destinations is reported
// with "partial": true.
func (s *Server) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	var req createBackupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	t := backup.TypeManual
	if req.Type != "" {
		var err error
		if t, err = backup.ParseType(req.Type); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	meta := map[string]string{"source": "api"}
	if claims := claimsFromContext(r.Context()); claims != nil {
		meta["requested_by"] = claims.Subject
	}

	rec, err := s.backups.CreateBackup(r.Context(), t, meta)
	partial := errors.Is(err, backup.ErrPartialBackup)
	if err != nil && !partial {
		s.logger.Error("creating backup failed", "type", string(t), "error", err)
		writeInternalError(w, "failed to create backup")
		return
	}
	s.recordAudit(r, audit.ActionBackupCreate, rec.ID, map[string]any{"type": string(t), "partial": partial})

	writeJSON(w, http.StatusCreated, map[string]any{
		"backup":  rec.Summary(),
		"partial": partial,
	})
}

// handleCleanupBackups applies the retention policy now.
func (s *Server) handleCleanupBackups(w http.ResponseWriter, r *http.Request) {
	if err := s.backups.CleanupOldBackups(r.Context()); err != nil {
		s.logger.Error("backup cleanup failed", "error", err)
		writeInternalError(w, "backup cleanup failed")
		return
	}
	s.recordAudit(r, audit.ActionBackupCleanup, "", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleValidateBackup reports whether a stored backup carries both collections.
func (s *Server) handleValidateBackup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.backups.ValidateBackup(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "valid": true})
	case errors.Is(err, backup.ErrInvalidBackup):
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "valid": false, "reason": err.Error()})
	case errors.Is(err, backup.ErrBackupNotFound):
		writeNotFound(w, "backup not found")
	default:
		s.logger.Error("validating backup failed", "id", id, "error", err)
		writeInternalError(w, "failed to validate backup")
	}
}

// handleRestoreBackup replaces the registry and access log with a stored backup.
func (s *Server) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.backups.RestoreBackup(r.Context(), id); err != nil {
		if !writeDomainError(w, err) {
			s.logger.Error("restore failed", "id", id, "error", err)
			writeInternalError(w, "restore failed")
		}
		return
	}
	s.logger.Warn("registry restored from backup", "id", id, "subject", subjectOf(r))
	s.recordAudit(r, audit.ActionBackupRestore, id, nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "restored", "id": id})
}

// handleRestoreFromFile restores from a backup file when the stored copy is gone.
func (s *Server) handleRestoreFromFile(w http.ResponseWriter, r *http.Request) {
	var req restoreFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.FileName == "" {
		writeBadRequest(w, "file_name is required")
		return
	}

	rec, err := s.backups.RestoreFromFile(r.Context(), req.FileName)
	if err != nil {
		if !writeDomainError(w, err) {
			s.logger.Error("restore from file failed", "file", req.FileName, "error", err)
			writeInternalError(w, "restore failed")
		}
		return
	}
	s.logger.Warn("registry restored from backup file", "file", req.FileName, "subject", subjectOf(r))
	s.recordAudit(r, audit.ActionBackupRestoreFile, req.FileName, map[string]any{"backup_id": rec.ID})
	writeJSON(w, http.StatusOK, map[string]any{"status": "restored", "backup": rec.Summary()})
}

func subjectOf(r *http.Request) string {
	if claims := claimsFromContext(r.Context()); claims != nil {
		return claims.Subject
	}
	return ""
}
