package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/curator/internal/ingest"
	"github.com/MikeSquared-Agency/curator/internal/rows"
)

const maxUploadBytes = 10 << 20

type cursorRequest struct {
	Delta *int `json:"delta" validate:"required,min=-1,max=1"`
}

type fieldRequest struct {
	Name  string `json:"name" validate:"required,oneof=make model year color status"`
	Value string `json:"value" validate:"max=256"`
}

type instructionRequest struct {
	Instruction string `json:"instruction" validate:"required,max=8192"`
}

type moveResponse struct {
	Row   rows.Row `json:"row"`
	Moved bool     `json:"moved"`
}

type editResponse struct {
	Row     rows.Row `json:"row"`
	Applied bool     `json:"applied"`
}

func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return err
	}
	return nil
}

// loadDataset accepts a multipart "file" field or a raw CSV/XLSX body.
func (s *Server) loadDataset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	name, body, err := uploadedFile(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer body.Close()

	source, err := ingest.Read(name, body)
	if err != nil {
		s.fail(w, err)
		return
	}

	view, err := s.session.Load(r.Context(), source)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info("dataset uploaded", "name", name, "rows", len(view.Rows))
	RespondJSON(w, http.StatusCreated, view)
}

func uploadedFile(r *http.Request) (string, io.ReadCloser, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		return hdr.Filename, f, nil
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return "upload.xlsx", r.Body, nil
	case "", "text/csv", "text/plain", "application/csv", "application/octet-stream":
		name := "upload.csv"
		if format := strings.ToLower(r.URL.Query().Get("format")); format != "" {
			name = "upload." + format
		}
		return name, r.Body, nil
	default:
		return "", nil, fmt.Errorf("%w: content type %q", ingest.ErrUnsupportedFormat, mediaType)
	}
}

func (s *Server) listRows(w http.ResponseWriter, r *http.Request) {
	v, err := s.session.View(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, v)
}

func (s *Server) currentRow(w http.ResponseWriter, r *http.Request) {
	row, err := s.session.Current(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, row)
}

func (s *Server) moveCursor(w http.ResponseWriter, r *http.Request) {
	var req cursorRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	row, moved, err := s.session.Navigate(r.Context(), *req.Delta)
	if err != nil {
		s.fail(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, moveResponse{Row: row, Moved: moved})
}

func (s *Server) editField(w http.ResponseWriter, r *http.Request) {
	var req fieldRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	row, applied, err := s.session.EditField(r.Context(), req.Name, req.Value)
	if err != nil {
		s.fail(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, editResponse{Row: row, Applied: applied})
}

func (s *Server) submitCurrent(w http.ResponseWriter, r *http.Request) {
	row, err := s.session.Submit(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	RespondJSON(w, http.StatusAccepted, row)
}

func (s *Server) retryRow(w http.ResponseWriter, r *http.Request) {
	id, err := rowID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	row, err := s.session.Retry(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	RespondJSON(w, http.StatusAccepted, row)
}

func (s *Server) reenrichRow(w http.ResponseWriter, r *http.Request) {
	id, err := rowID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	row, err := s.session.Reenrich(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	RespondJSON(w, http.StatusAccepted, row)
}

func rowID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return id, nil
}

func (s *Server) getInstruction(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, instructionRequest{Instruction: s.session.Instruction()})
}

func (s *Server) putInstruction(w http.ResponseWriter, r *http.Request) {
	var req instructionRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.session.SetInstruction(req.Instruction); err != nil {
		s.fail(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, instructionRequest{Instruction: s.session.Instruction()})
}
