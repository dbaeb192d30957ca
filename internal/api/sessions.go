package api

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/banshee-data/canlog/internal/chart"
	"github.com/banshee-data/canlog/internal/decimate"
	"github.com/banshee-data/canlog/internal/httputil"
	"github.com/banshee-data/canlog/internal/security"
	"github.com/banshee-data/canlog/internal/session"
	"github.com/banshee-data/canlog/internal/summary"
)

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	u, err := s.readUpload(w, r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sess, err := session.New(u.data, u.texts, u.channels)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	e := s.addSession(sess, u.source)
	log.Printf("session %s: %s decoded, %d frames", sess.ID, u.source, sess.Stats().FrameCount)
	httputil.WriteJSON(w, http.StatusCreated, e.info())
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.sessions, e.sess.ID)
	s.mu.Unlock()
	e.sess.FreeMemory()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sessionStats(w http.ResponseWriter, r *http.Request) {
	if e, ok := s.lookup(w, r); ok {
		httputil.WriteJSONOK(w, e.sess.Stats())
	}
}

func (s *Server) sessionPreview(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	n, err := queryInt(r, "n", s.cfg.GetPreviewFrames())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, e.sess.Preview(n))
}

func (s *Server) sessionSignals(w http.ResponseWriter, r *http.Request) {
	if e, ok := s.lookup(w, r); ok {
		httputil.WriteJSONOK(w, e.sess.Signals())
	}
}

func (s *Server) sessionDecimated(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	maxPoints, err := s.queryMaxPoints(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, e.sess.Decimated(maxPoints, querySelection(r)))
}

func (s *Server) sessionSummary(w http.ResponseWriter, r *http.Request) {
	if e, ok := s.lookup(w, r); ok {
		httputil.WriteJSONOK(w, summary.Compute(e.sess.Frames(), r.URL.Query()["signal"]...))
	}
}

func (s *Server) sessionExportCSV(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(e.source, ".csv"))
	// Rows are streamed, so a failure here can only be logged.
	if err := e.sess.ExportCSV(w, r.URL.Query()["signal"]); err != nil {
		log.Printf("session %s: csv export: %v", e.sess.ID, err)
	}
}

type chartFunc func(io.Writer, decimate.Result, string) error

func (s *Server) sessionChartHTML(w http.ResponseWriter, r *http.Request) {
	s.sessionChart(w, r, "text/html; charset=utf-8", chart.HTML)
}

func (s *Server) sessionChartPNG(w http.ResponseWriter, r *http.Request) {
	s.sessionChart(w, r, "image/png", chart.PNG)
}

func (s *Server) sessionChart(w http.ResponseWriter, r *http.Request, contentType string, render chartFunc) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	maxPoints, err := s.queryMaxPoints(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res := e.sess.Decimated(maxPoints, querySelection(r))
	var buf bytes.Buffer
	if err := render(&buf, res, e.source); err != nil {
		httputil.WriteError(w, fmt.Errorf("render chart: %w", err))
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(buf.Bytes())
}

// attachment builds a Content-Disposition header naming a download after
// the log it came from.
func attachment(source, ext string) string {
	base := strings.TrimSuffix(source, ".blf")
	base = strings.TrimSuffix(base, ".BLF")
	return fmt.Sprintf("attachment; filename=%q", security.SanitizeFilename(base)+ext)
}
