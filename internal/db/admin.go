package db

import (
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/roadquality/internal/security"
)

// AttachAdminRoutes mounts the SQL console and a backup download under
// /debug/. The backup route takes an optional ?label= for the file name. backupDir receives the temporary VACUUM INTO file; empty uses
// the OS temp dir.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux, backupDir string) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://roadquality.db", db.DB, &tailsql.DBOptions{
		Label: "Road quality DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	if backupDir == "" {
		backupDir = os.TempDir()
	}
	debug.Handle("backup", "Create and download a backup of the database now", db.backupHandler(backupDir))
	return nil
}

func (db *DB) backupHandler(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := fmt.Sprintf("roadquality-backup-%d.db", time.Now().Unix())
		if label := r.URL.Query().Get("label"); label != "" {
			name = fmt.Sprintf("roadquality-backup-%s-%d.db", security.SanitizeFilename(label), time.Now().Unix())
		}
		backupPath := filepath.Join(dir, name)
		if err := security.WithinDir(backupPath, dir); err != nil {
			http.Error(w, fmt.Sprintf("Invalid backup path: %v", err), http.StatusBadRequest)
			return
		}
		if _, err := db.ExecContext(r.Context(), "VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer backupFile.Close()
		if info, err := backupFile.Stat(); err == nil {
			log.Printf("streaming backup %s (%s)", name, humanize.Bytes(uint64(info.Size())))
		}

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
		w.Header().Set("Content-Type", "application/gzip")

		gz := gzip.NewWriter(w)
		defer gz.Close()
		if _, err := io.Copy(gz, backupFile); err != nil {
			log.Printf("Failed to stream backup: %v", err)
		}
	})
}
