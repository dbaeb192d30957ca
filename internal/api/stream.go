package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/banshee-data/canlog/internal/dbc"
	"github.com/banshee-data/canlog/internal/export"
	"github.com/banshee-data/canlog/internal/httputil"
	"github.com/banshee-data/canlog/internal/monitoring"
	"github.com/banshee-data/canlog/internal/progress"
	"github.com/banshee-data/canlog/internal/session"
	"github.com/banshee-data/canlog/internal/store"
)

// smartPreview decodes the head of an uploaded log. The upload may be a
// prefix of a larger file whose size is given in file_size.
func (s *Server) smartPreview(w http.ResponseWriter, r *http.Request) {
	u, err := s.readUpload(w, r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	recs, err := session.LoadPreviewSmart(u.data, u.texts, u.channels, u.declared, session.PolicyFromConfig(s.cfg))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, recs)
}

func (s *Server) streamCSV(w http.ResponseWriter, r *http.Request) {
	u, tables, ok := s.readDecodable(w, r)
	if !ok {
		return
	}
	sink := progress.Func(monitoring.ProgressLogger("csv " + u.source))
	text, err := export.CSVStream(u.data, tables, sink, export.OptionsFromConfig(s.cfg))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(u.source, ".csv"))
	_, _ = w.Write(text)
}

func (s *Server) streamDecimated(w http.ResponseWriter, r *http.Request) {
	maxPoints, err := s.queryMaxPoints(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	u, tables, ok := s.readDecodable(w, r)
	if !ok {
		return
	}
	sink := progress.Func(monitoring.ProgressLogger("decimate " + u.source))
	res, err := export.DecimatedStream(u.data, tables, maxPoints, querySelection(r), sink, export.OptionsFromConfig(s.cfg))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, res)
}

func (s *Server) readDecodable(w http.ResponseWriter, r *http.Request) (upload, dbc.ChannelTables, bool) {
	u, err := s.readUpload(w, r)
	if err != nil {
		httputil.WriteError(w, err)
		return u, nil, false
	}
	tables, err := dbc.BuildChannelTables(u.texts, u.channels)
	if err != nil {
		httputil.WriteError(w, err)
		return u, nil, false
	}
	return u, tables, true
}

func (s *Server) createImport(w http.ResponseWriter, r *http.Request) {
	u, tables, ok := s.readDecodable(w, r)
	if !ok {
		return
	}
	sink := progress.Func(monitoring.ProgressLogger("import " + u.source))
	imp, err := s.store.ImportLog(r.Context(), u.source, u.data, tables, sink, s.cfg.GetCSVProgressInterval())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, imp)
}

func (s *Server) listImports(w http.ResponseWriter, r *http.Request) {
	imps, err := s.store.Imports()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if imps == nil {
		imps = []store.Import{}
	}
	httputil.WriteJSONOK(w, imps)
}

func (s *Server) importSignals(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.Signals(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	httputil.WriteJSONOK(w, names)
}

func (s *Server) importSeries(w http.ResponseWriter, r *http.Request) {
	signal := r.URL.Query().Get("signal")
	if signal == "" {
		httputil.BadRequest(w, "missing signal")
		return
	}
	pts, err := s.store.SignalSeries(r.PathValue("id"), signal)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if pts == nil {
		pts = []store.Point{}
	}
	httputil.WriteJSONOK(w, pts)
}

func (s *Server) deleteImport(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteImport(r.PathValue("id"))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		httputil.NotFound(w, err.Error())
	case err != nil:
		httputil.WriteError(w, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
