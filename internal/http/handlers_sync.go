package http

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/interchange"
	"fintrack/internal/log"
	"fintrack/internal/syncer"
)

// signedIn returns the session of a request that needs the remote store.
func (s *Server) signedIn(r *http.Request) (auth.Session, error) {
	if s.sync == nil {
		return auth.Session{}, errSyncDisabled
	}
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		return auth.Session{}, errAuthRequired
	}
	return sess, nil
}

// handleSync runs a push, pull or full sync. The mode comes from ?mode=
// and defaults to full.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	sess, err := s.signedIn(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	mode, err := syncer.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.store(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.syncRuns, 1)
	start := time.Now()
	res, err := s.sync.Run(r.Context(), st, sess.UserID, mode)
	if err != nil {
		atomic.AddInt64(&s.appMetrics.syncFailures, 1)
		writeError(w, r, err)
		return
	}
	s.dropViews(st.Namespace())
	log.FromContext(r.Context()).InfoContext(r.Context(), "Sync completed",
		log.FieldOperation, string(mode),
		"pushed", res.Pushed,
		"pulled", res.Pulled,
		log.FieldDuration, time.Since(start).Milliseconds())
	writeJSON(w, http.StatusOK, res)
}

// handleWatch starts the realtime subscription for the signed-in user. It
// runs until unwatched or the server shuts down.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	sess, err := s.signedIn(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.store(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := log.WithContext(s.baseCtx, s.logger.With(log.FieldUserID, sess.UserID))
	s.sync.Watch(ctx, st, sess.UserID)
	writeJSON(w, http.StatusAccepted, map[string]bool{"watching": true})
}

func (s *Server) handleUnwatch(w http.ResponseWriter, r *http.Request) {
	sess, err := s.signedIn(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.sync.Unwatch(sess.UserID)
	writeJSON(w, http.StatusOK, map[string]bool{"watching": false})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, err := interchange.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	st, err := s.store(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap := st.Snapshot()
	name := fmt.Sprintf("fintrack-%s.%s", time.Now().Format(core.DateLayout), f)
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := interchange.Export(w, snap, f); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Export failed", log.FieldError, err)
	}
}

// handleImport loads an exported document. The format comes from ?format=
// or else the Content-Type.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	f, err := importFormat(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := readBody(w, r, maxImportBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.store(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := interchange.Import(r.Context(), st, data, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.imports, 1)
	s.dropViews(st.Namespace())
	log.FromContext(r.Context()).InfoContext(r.Context(), "Import completed",
		log.FieldOperation, log.OpImport, log.FieldCount, sum.Transactions)
	writeJSON(w, http.StatusOK, sum)
}

func importFormat(r *http.Request) (interchange.Format, error) {
	if v := r.URL.Query().Get("format"); v != "" {
		f, err := interchange.ParseFormat(v)
		if err != nil {
			return "", fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return f, nil
	}
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "yaml"):
		return interchange.FormatYAML, nil
	case strings.Contains(ct, "csv"):
		return interchange.FormatCSV, nil
	}
	return interchange.FormatJSON, nil
}

// dropViews discards cached analytics of namespace after a bulk replace.
// Their keys are already stale; this frees the slots early.
func (s *Server) dropViews(namespace string) {
	if n := s.analytics.DeletePrefix(cache.NamespacePrefix(namespace)); n > 0 {
		s.logger.Debug("Dropped cached views", log.FieldNamespace, namespace, log.FieldCount, n)
	}
}
