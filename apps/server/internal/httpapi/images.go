package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"scholaverse/apps/server/internal/auth"
	"scholaverse/apps/server/internal/imagestore"
)

type imageListResponse struct {
	StudentID uint64                  `json:"student_id"`
	Images    []imagestore.ImageEntry `json:"images"`
}

func (s *Server) registerImageRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/images/list", s.auth.RequireSession(s.handleListImages))
	mux.HandleFunc("/api/images/meta/{card_id}", s.auth.RequireSession(s.handleImageMetadata))
	mux.HandleFunc("/api/images/file/{path...}", s.auth.RequireSession(s.handleImageFile))
}

// handleListImages lists the caller's cards. Staff may pass student_id to
// look at another student. Storage failures degrade to an empty list.
func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	identity, _ := auth.IdentityFrom(r.Context())
	studentID := identity.AccountID
	if raw := r.URL.Query().Get("student_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "student_id must be an integer")
			return
		}
		if id != studentID && !identity.Role.IsStaff() {
			writeError(w, http.StatusForbidden, "teacher access required")
			return
		}
		studentID = id
	}

	images, err := s.images.ListImages(r.Context(), studentID)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Uint64("student_id", studentID).Msg("image list unavailable")
		images = []imagestore.ImageEntry{}
	}
	writeJSON(w, http.StatusOK, imageListResponse{StudentID: studentID, Images: images})
}

func (s *Server) handleImageMetadata(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	cardID, err := strconv.ParseInt(r.PathValue("card_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "card_id must be an integer")
		return
	}
	md, err := s.images.GetMetadata(r.Context(), cardID)
	if err != nil {
		s.writeImageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, md)
}

func (s *Server) handleImageFile(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	body, contentType, err := s.images.GetImage(r.Context(), r.PathValue("path"))
	if err != nil {
		s.writeImageError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) writeImageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, imagestore.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, imagestore.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("image storage request failed")
		writeError(w, http.StatusBadGateway, "image storage unavailable")
	}
}
