package api

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"

	"meetscribe/internal/insights"
	"meetscribe/internal/logger"
	"meetscribe/internal/pipeline"
	"meetscribe/internal/store"
)

// TranscriptPipeline runs the segmentation and transcription pipeline for
// one uploaded source file.
type TranscriptPipeline interface {
	Run(ctx context.Context, sourcePath string) (*pipeline.RunResult, error)
}

// API holds the handler dependencies.
type API struct {
	logger   logger.Logger
	store    *store.Store
	pipeline TranscriptPipeline
	insights insights.Generator
}

// New builds the HTTP router with its dependencies injected.
func New(log logger.Logger, st *store.Store, pipe TranscriptPipeline, gen insights.Generator) http.Handler {
	api := &API{
		logger:   log,
		store:    st,
		pipeline: pipe,
		insights: gen,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /upload", api.handleUpload)
	mux.HandleFunc("POST /summarize", api.insightHandler(store.Summaries, api.insights.Summarize))
	mux.HandleFunc("POST /key_points", api.insightHandler(store.KeyPoints, api.insights.KeyPoints))
	mux.HandleFunc("POST /action_items", api.insightHandler(store.ActionItems, api.insights.ActionItems))
	mux.HandleFunc("POST /participants", api.insightHandler(store.Participants, api.insights.Participants))
	mux.HandleFunc("GET /download/{category}/{fileName}", api.handleDownload)
	mux.HandleFunc("GET /health", api.handleHealth)

	return mux
}

// handleUpload accepts one multipart audio upload, runs the transcription
// pipeline on it, and persists the joined transcript under a fresh id.
// Identical uploads reuse the previously stored transcript.
//
// The request context is threaded into the pipeline, so a client
// disconnect cancels all in-flight segment units.
func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	reader, err := r.MultipartReader()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected a multipart upload"})
		return
	}

	part, err := nextFilePart(reader)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "upload contains no file"})
		return
	}

	uploadID, uploadPath, hash, err := a.store.SaveUpload(part)
	if err != nil {
		a.logger.Errorf("Failed to save upload: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save upload"})
		return
	}
	a.logger.Infof("Saved upload %s to %s", uploadID, uploadPath)

	if transcriptID, found := a.store.TranscriptForHash(hash); found {
		a.logger.Infof("Upload %s matches transcript %s, skipping transcription", uploadID, transcriptID)
		writeJSON(w, http.StatusOK, map[string]any{
			"uploaded_file":      uploadPath,
			"transcription_file": transcriptID + ".txt",
			"reused":             true,
		})
		return
	}

	result, err := a.pipeline.Run(r.Context(), uploadPath)
	if err != nil {
		a.logger.Errorf("Pipeline failed for upload %s: %v", uploadID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("transcription failed: %v", err)})
		return
	}

	transcriptID := uuid.NewString()
	fileName, err := a.store.SaveText(store.Transcriptions, transcriptID, result.Transcript())
	if err != nil {
		a.logger.Errorf("Failed to save transcript for upload %s: %v", uploadID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save transcript"})
		return
	}
	if err := a.store.RecordTranscript(hash, transcriptID); err != nil {
		a.logger.Warnf("Failed to record upload hash for %s: %v", uploadID, err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"uploaded_file":      uploadPath,
		"transcription_file": fileName,
		"segments":           result.Plan.SegmentCount,
		"failed":             result.Failed(),
	})
}

// insightRequest names the transcript a derived artifact is built from.
type insightRequest struct {
	Transcription string `json:"transcription"`
}

// insightHandler builds the handler for one derived-artifact endpoint.
// Every endpoint reads a stored transcript, runs one generator call, and
// persists the result under the transcript's id in its own category.
func (a *API) insightHandler(category string, generate func(context.Context, string) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req insightRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Transcription == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected a transcription id"})
			return
		}

		transcript, err := a.store.ReadText(store.Transcriptions, req.Transcription)
		if err != nil {
			a.logger.Warnf("Cannot read transcript %s: %v", req.Transcription, err)
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "transcription not found"})
			return
		}

		content, err := generate(r.Context(), transcript)
		if err != nil {
			a.logger.Errorf("Failed to generate %s for %s: %v", category, req.Transcription, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("failed to generate %s", category)})
			return
		}

		if _, err := a.store.SaveText(category, req.Transcription, content); err != nil {
			a.logger.Errorf("Failed to save %s for %s: %v", category, req.Transcription, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("failed to save %s", category)})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"content": content})
	}
}

func (a *API) handleDownload(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	fileName := r.PathValue("fileName")

	data, err := a.store.ReadFile(category, fileName)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", fileName))
	w.Write(data)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Server is running"))
}

// nextFilePart advances to the first multipart part that carries a file.
func nextFilePart(reader *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FileName() != "" {
			return part, nil
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
