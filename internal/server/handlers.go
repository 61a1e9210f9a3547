package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/audiolibrelab/audiobridge/internal/audio"
	"github.com/audiolibrelab/audiobridge/internal/service"
)

type aggregateRequest struct {
	Direction string   `json:"direction"`
	Devices   []string `json:"devices"`
	Name      string   `json:"name"`
}

type setDefaultRequest struct {
	Device string `json:"device"`
}

type startRecordingRequest struct {
	Device string `json:"device"`
	Output string `json:"output"`
}

type stopRecordingRequest struct {
	PID int `json:"pid"`
}

// stopRecordingResponse adds a download link for local recordings
type stopRecordingResponse struct {
	*service.RecordingStopped
	FileURL string `json:"file_url,omitempty"`
}

// decodeBody reads an optional JSON body into v. The request must be
// declared as JSON even when the body is empty, which keeps plain cross-site
// form posts out.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		sendErrorResponse(w, http.StatusUnsupportedMediaType, service.KindUsage, "Content-Type must be application/json")
		return false
	}

	err = json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		sendErrorResponse(w, http.StatusBadRequest, service.KindUsage, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func parseDirection(w http.ResponseWriter, value string) (audio.Direction, bool) {
	dir, err := audio.ParseDirection(value)
	if err != nil {
		sendErrorResponse(w, http.StatusBadRequest, service.KindUsage, err.Error())
		return 0, false
	}
	return dir, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeEnvelope(w, s.api.Status(r.Context()))
}

// handleDevices lists endpoints; ?direction=input|output&format=human|structured
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	query := r.URL.Query()
	dir, ok := parseDirection(w, query.Get("direction"))
	if !ok {
		return
	}
	format, err := service.ParseFormat(query.Get("format"))
	if err != nil {
		sendErrorResponse(w, http.StatusBadRequest, service.KindUsage, err.Error())
		return
	}

	writeEnvelope(w, s.api.ListDevices(r.Context(), dir, format))
}

// handleDeviceName serves /devices/name/{index}
func (s *Server) handleDeviceName(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/devices/name/")
	index, err := strconv.Atoi(raw)
	if err != nil {
		sendErrorResponse(w, http.StatusBadRequest, service.KindUsage, "Index must be an integer: "+raw)
		return
	}
	dir, ok := parseDirection(w, r.URL.Query().Get("direction"))
	if !ok {
		return
	}

	writeEnvelope(w, s.api.GetDeviceNameAtIndex(r.Context(), dir, index))
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req aggregateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	dir, ok := parseDirection(w, req.Direction)
	if !ok {
		return
	}

	writeEnvelope(w, s.api.CreateAggregate(r.Context(), dir, req.Devices, req.Name))
}

func (s *Server) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req setDefaultRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeEnvelope(w, s.api.SetDefault(r.Context(), req.Device))
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req startRecordingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeEnvelope(w, s.api.StartRecording(r.Context(), req.Device, req.Output))
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req stopRecordingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	env := s.api.StopRecording(r.Context(), req.PID)
	if stopped, ok := env.Data.(*service.RecordingStopped); ok && env.OK {
		env.Data = stopRecordingResponse{RecordingStopped: stopped, FileURL: s.fileURL(stopped.Path)}
	}
	writeEnvelope(w, env)
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeEnvelope(w, s.api.ListRecordings(r.Context()))
}

// fileURL returns the /files link for a recording inside the output
// directory, or "" for anything else
func (s *Server) fileURL(recording string) string {
	if recording == "" {
		return ""
	}
	rel, err := filepath.Rel(s.cfg.Recorder.Directory, recording)
	if err != nil || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return ""
	}
	return "/files/" + rel
}

// handleFiles serves finished recordings. The file of the session in
// progress stays private to the capture process until it stops.
func (s *Server) handleFiles(files http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active := s.api.Service().ActiveRecordingPath()
		if active != "" {
			name := path.Clean("/" + strings.TrimPrefix(r.URL.Path, "/files/"))
			if filepath.Join(s.cfg.Recorder.Directory, filepath.FromSlash(name)) == active {
				sendErrorResponse(w, http.StatusConflict, service.KindAlreadyRecording, "Recording in progress: "+filepath.Base(active))
				return
			}
		}
		files.ServeHTTP(w, r)
	}
}
