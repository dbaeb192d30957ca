package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/canlog/internal/canerr"
	"github.com/banshee-data/canlog/internal/decimate"
	"github.com/banshee-data/canlog/internal/fsutil"
	"github.com/banshee-data/canlog/internal/security"
)

// multipartMemory is the part of a form kept in memory before spilling to
// temporary files.
const multipartMemory = 32 << 20

// upload is a log plus the definitions to decode it with.
//
// Form fields:
//
//	log        the BLF file (or "path", a log under the server's data dir)
//	dbc        one DBC per channel, as files or text values
//	channel    the channel number for each dbc, in the same order
//	file_size  declared size of the full log when "log" is a prefix
type upload struct {
	data     []byte
	source   string
	texts    []string
	channels []uint16
	declared int64
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (upload, error) {
	var u upload
	limit := s.cfg.GetMaxUploadBytes()
	if r.ContentLength > limit {
		return u, &http.MaxBytesError{Limit: limit}
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return u, err
		}
		return u, canerr.Wrap(canerr.ErrInputShape, err, "parse multipart form")
	}
	form := r.MultipartForm
	defer form.RemoveAll()

	var err error
	switch {
	case len(form.File["log"]) > 0:
		fh := form.File["log"][0]
		if u.data, err = readPart(fh); err != nil {
			return u, err
		}
		u.source = fh.Filename
	case r.FormValue("path") != "":
		p, err := security.ResolveLogPath(s.dataDir, r.FormValue("path"))
		if err != nil {
			return u, canerr.Wrap(canerr.ErrInputShape, err, "path")
		}
		if u.data, _, err = fsutil.ReadLimited(s.fs, p, limit); err != nil {
			return u, canerr.Wrap(canerr.ErrInputShape, err, "read %s", filepath.Base(p))
		}
		u.source = filepath.Base(p)
	default:
		return u, canerr.Wrap(canerr.ErrInputShape, nil, "missing log")
	}

	if files := form.File["dbc"]; len(files) > 0 {
		for _, fh := range files {
			b, err := readPart(fh)
			if err != nil {
				return u, err
			}
			u.texts = append(u.texts, string(b))
		}
	} else {
		u.texts = form.Value["dbc"]
	}

	for _, v := range form.Value["channel"] {
		ch, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return u, canerr.Wrap(canerr.ErrInputShape, err, "channel %q", v)
		}
		u.channels = append(u.channels, uint16(ch))
	}

	u.declared = int64(len(u.data))
	if v := r.FormValue("file_size"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return u, canerr.Wrap(canerr.ErrInputShape, nil, "file_size %q", v)
		}
		u.declared = n
	}
	return u, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open part %s: %w", fh.Filename, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read part %s: %w", fh.Filename, err)
	}
	return b, nil
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, canerr.Wrap(canerr.ErrInputShape, nil, "invalid %s %q", name, v)
	}
	return n, nil
}

// queryMaxPoints reads max_points. Zero or absent means the configured default.
func (s *Server) queryMaxPoints(r *http.Request) (int, error) {
	n, err := queryInt(r, "max_points", 0)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		n = s.cfg.GetDefaultMaxPoints()
	}
	return n, nil
}

// querySelection reads repeated "signal" parameters; none selects all.
func querySelection(r *http.Request) decimate.Selection {
	names := r.URL.Query()["signal"]
	if len(names) == 0 {
		return decimate.All()
	}
	return decimate.Only(names...)
}
