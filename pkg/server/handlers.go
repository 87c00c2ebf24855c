package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/lossdiff/pkg/lossdata"
	"github.com/Sumatoshi-tech/lossdiff/pkg/lossstats"
	"github.com/Sumatoshi-tech/lossdiff/pkg/mathutil"
	"github.com/Sumatoshi-tech/lossdiff/pkg/window"
)

const (
	multipartMemory = 8 << 20
	fileField       = "file"
	// lastModifiedField carries the browser's File.lastModified, in Unix milliseconds.
	lastModifiedField = "last_modified"
	// fileNameHeader names a raw-body upload.
	fileNameHeader = "X-File-Name"
)

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type parseErrorResponse struct {
	Error  string `json:"error"`
	Row    int    `json:"row"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Reason string `json:"reason"`
}

type statsResponse struct {
	Generation uint64               `json:"generation"`
	Loaded     bool                 `json:"loaded"`
	Start      int                  `json:"start"`
	End        int                  `json:"end"`
	Len        int                  `json:"len"`
	Stats      lossstats.Statistics `json:"stats"`
}

func newStatsResponse(view window.View) statsResponse {
	return statsResponse{
		Generation: view.Generation,
		Loaded:     view.Loaded,
		Start:      view.Start,
		End:        view.End,
		Len:        view.Len,
		Stats:      view.Stats,
	}
}

type stagedResponse struct {
	Staged string `json:"staged"`
	Value  int    `json:"value"`
}

// bound is a window bound as sent by clients. Integral JSON numbers of any
// magnitude are accepted and saturated to int, so the engine can clamp them.
type bound int

func (b *bound) UnmarshalJSON(data []byte) error {
	var v float64

	err := json.Unmarshal(data, &v)
	if err != nil {
		return fmt.Errorf("decode bound: %w", err)
	}

	*b = bound(mathutil.SaturateInt(v))

	return nil
}

type windowRequest struct {
	Start bound `json:"start"`
	End   bound `json:"end"`
}

type boundRequest struct {
	Value bound `json:"value"`
}

// upload is a dataset body plus what the client told us about the file.
type upload struct {
	body         io.Reader
	name         string
	contentType  string
	size         int64
	lastModified time.Time
}

func (s *Server) handleDataset(rw http.ResponseWriter, hr *http.Request) {
	ctx := hr.Context()
	hr.Body = http.MaxBytesReader(rw, hr.Body, s.opts.UploadLimit)

	up, err := readUpload(hr)
	if err != nil {
		s.writeLoadError(ctx, rw, err)

		return
	}

	if closer, ok := up.body.(io.Closer); ok {
		defer closer.Close()
	}

	s.logger.InfoContext(ctx, "dataset received",
		"name", up.name,
		"size", humanize.Bytes(uint64(max(up.size, 0))),
		"type", up.contentType,
		"last_modified", formatModified(up.lastModified),
	)

	view, err := s.manager.LoadFrom(ctx, up.body)
	if err != nil {
		s.writeLoadError(ctx, rw, err)

		return
	}

	writeJSON(ctx, rw, http.StatusOK, newStatsResponse(view))
}

func readUpload(hr *http.Request) (upload, error) {
	mediaType, _, _ := mime.ParseMediaType(hr.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return upload{
			body:        hr.Body,
			name:        hr.Header.Get(fileNameHeader),
			contentType: mediaType,
			size:        hr.ContentLength,
		}, nil
	}

	parseErr := hr.ParseMultipartForm(multipartMemory)
	if parseErr != nil {
		return upload{}, fmt.Errorf("read multipart upload: %w", parseErr)
	}

	file, header, fileErr := hr.FormFile(fileField)
	if fileErr != nil {
		return upload{}, fmt.Errorf("read multipart field %q: %w", fileField, fileErr)
	}

	up := upload{
		body:        file,
		name:        header.Filename,
		contentType: header.Header.Get("Content-Type"),
		size:        header.Size,
	}

	millis, convErr := strconv.ParseInt(hr.FormValue(lastModifiedField), 10, 64)
	if convErr == nil {
		up.lastModified = time.UnixMilli(millis)
	}

	return up, nil
}

func formatModified(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	return t.UTC().Format(time.RFC3339)
}

func (s *Server) writeLoadError(ctx context.Context, rw http.ResponseWriter, err error) {
	var (
		parseErr *lossdata.ParseError
		sizeErr  *http.MaxBytesError
	)

	switch {
	case errors.As(err, &parseErr):
		writeJSON(ctx, rw, http.StatusUnprocessableEntity, parseErrorResponse{
			Error:  parseErr.Error(),
			Row:    parseErr.Row,
			Line:   parseErr.Line,
			Column: parseErr.Column,
			Reason: parseErr.Reason,
		})
	case errors.As(err, &sizeErr):
		writeJSON(ctx, rw, http.StatusRequestEntityTooLarge, errorResponse{
			Error: fmt.Sprintf("upload exceeds %s", humanize.Bytes(uint64(max(sizeErr.Limit, 0)))),
		})
	case errors.Is(err, window.ErrSuperseded):
		writeJSON(ctx, rw, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.DebugContext(ctx, "upload abandoned", "error", err)
		writeJSON(ctx, rw, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		writeJSON(ctx, rw, http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
}

func (s *Server) handleView(rw http.ResponseWriter, hr *http.Request) {
	writeJSON(hr.Context(), rw, http.StatusOK, s.manager.View())
}

func (s *Server) handleStats(rw http.ResponseWriter, hr *http.Request) {
	writeJSON(hr.Context(), rw, http.StatusOK, newStatsResponse(s.manager.View()))
}

func (s *Server) handleWindow(rw http.ResponseWriter, hr *http.Request) {
	ctx := hr.Context()

	var req windowRequest

	decodeErr := decodeBody(rw, hr, windowSchema, &req)
	if decodeErr != nil {
		writeValidationError(ctx, rw, decodeErr)

		return
	}

	view, err := s.manager.SetWindow(ctx, int(req.Start), int(req.End))
	s.writeWindowResult(ctx, rw, view, err)
}

// handleStage stages one bound through set; nothing is recomputed until replot.
func (s *Server) handleStage(name string, set func(int)) http.HandlerFunc {
	return func(rw http.ResponseWriter, hr *http.Request) {
		ctx := hr.Context()

		var req boundRequest

		decodeErr := decodeBody(rw, hr, boundSchema, &req)
		if decodeErr != nil {
			writeValidationError(ctx, rw, decodeErr)

			return
		}

		set(int(req.Value))

		writeJSON(ctx, rw, http.StatusAccepted, stagedResponse{Staged: name, Value: int(req.Value)})
	}
}

func (s *Server) handleReplot(rw http.ResponseWriter, hr *http.Request) {
	ctx := hr.Context()

	view, err := s.manager.TriggerReplot(ctx)
	s.writeWindowResult(ctx, rw, view, err)
}

func (s *Server) writeWindowResult(ctx context.Context, rw http.ResponseWriter, view window.View, err error) {
	switch {
	case errors.Is(err, window.ErrNoDataset):
		writeJSON(ctx, rw, http.StatusConflict, errorResponse{Error: err.Error()})
	case err != nil:
		s.logger.ErrorContext(ctx, "window change failed", "error", err)
		writeJSON(ctx, rw, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	default:
		writeJSON(ctx, rw, http.StatusOK, newStatsResponse(view))
	}
}

func writeValidationError(ctx context.Context, rw http.ResponseWriter, err error) {
	resp := errorResponse{Error: errInvalidBody.Error()}

	var vErr *validationError
	if errors.As(err, &vErr) {
		resp.Details = vErr.details
	}

	writeJSON(ctx, rw, http.StatusBadRequest, resp)
}

// writeJSON encodes value as the response body with the given status.
func writeJSON(ctx context.Context, rw http.ResponseWriter, status int, value any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)

	encodeErr := json.NewEncoder(rw).Encode(value)
	if encodeErr != nil {
		slog.Default().ErrorContext(ctx, "failed to encode JSON response", "error", encodeErr)
	}
}
