package api

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/atlaslabs/newsbase/importer"
	"github.com/atlaslabs/newsbase/ingest"
	"github.com/atlaslabs/newsbase/sse"
	"github.com/atlaslabs/newsbase/worker"
)

// uploadStream accepts a multipart CSV or XLSX upload and streams a
// row_ok/row_error event per row as it's ingested, followed by a
// completed summary (spec §4.9, §6.1 "structured import").
func (h *handler) uploadStream(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	maxBytes := h.engine.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds maximum size")
			return
		}
		writeError(w, http.StatusBadRequest, "upload too large or malformed")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	format, err := importer.DetectFormat(filepath.Base(header.Filename))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sink, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	inserted, failed := 0, 0
	onRow := func(res importer.RowResult) error {
		if res.Err != nil {
			failed++
			return sink.Send(sse.NewRowError(res.Index, res.Err.Error()))
		}
		docID, err := h.engine.Ingest.Ingest(r.Context(), ingest.Candidate{
			UserID:      userID,
			Title:       res.Row.Title,
			Content:     res.Row.Content,
			SourceURL:   res.Row.SourceURL,
			SourceType:  "upload",
			Tags:        res.Row.Tags,
			PublishedAt: res.Row.PublishedAt,
		})
		if errors.Is(err, worker.ErrQueueFull) {
			failed++
			sink.Send(sse.NewRowError(res.Index, err.Error()))
			// The queue is full for every remaining row too; stop
			// hammering it and end the stream now instead of reporting
			// N more identical failures (spec §7 "Backpressure").
			return err
		}
		if err != nil && !errors.Is(err, ingest.ErrDuplicate) {
			failed++
			return sink.Send(sse.NewRowError(res.Index, err.Error()))
		}
		inserted++
		return sink.Send(sse.NewRowOK(res.Index, docID))
	}

	var parseErr error
	switch format {
	case importer.FormatCSV:
		parseErr = importer.ParseCSV(r.Context(), file, onRow)
	case importer.FormatXLSX:
		parseErr = importer.ParseXLSX(r.Context(), file, onRow)
	}
	if parseErr != nil {
		sink.Send(sse.NewError("upload_failed", parseErr.Error()))
		return
	}

	sink.Send(sse.NewUploadCompleted(inserted, failed))
}
