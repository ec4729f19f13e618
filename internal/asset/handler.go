package asset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/typeid"
)

const maxUploadSize = 20 << 20 // 20MB

const (
	KindImage = "image"
	KindModel = "model"
)

// UploadResponse is returned from the upload endpoint.
type UploadResponse struct {
	ID         string             `json:"id"`
	URL        string             `json:"url"`
	Kind       string             `json:"kind"`
	Type       string             `json:"type"`
	Name       string             `json:"name"`
	Width      int                `json:"width,omitempty"`
	Height     int                `json:"height,omitempty"`
	Dimensions *design.Dimensions `json:"dimensions,omitempty"`
}

// Handler serves asset upload and retrieval endpoints.
type Handler struct {
	dir      string // directory to store asset files
	decoders map[design.ModelFormat]Decoder
}

// NewHandler creates a new asset handler that stores files in dir.
func NewHandler(dir string) *Handler {
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("create asset dir", "error", err, "dir", dir)
	}
	return &Handler{dir: dir, decoders: DefaultDecoders()}
}

// Dir is the directory uploads are written to.
func (h *Handler) Dir() string { return h.dir }

// Upload handles POST /assets/upload (multipart form with "file" field).
// Images are stored as PNG; models are stored as uploaded once they decode.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "file too large (max 20MB)", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	format := formatFromName(header.Filename)

	var resp UploadResponse
	switch {
	case isImage(contentType):
		resp, err = h.saveImage(file)
	case h.decoders[format] != nil:
		resp, err = h.saveModel(file, format)
	default:
		http.Error(w, "only PNG, JPEG and WebP images or GLB, glTF and OBJ models are supported", http.StatusBadRequest)
		return
	}
	if err != nil {
		var bad badUpload
		if errors.As(err, &bad) {
			http.Error(w, bad.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("save asset", "error", err, "name", header.Filename)
		http.Error(w, "failed to save file", http.StatusInternalServerError)
		return
	}
	resp.Name = header.Filename

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// badUpload marks errors caused by the uploaded content.
type badUpload struct{ msg string }

func (e badUpload) Error() string { return e.msg }

func isImage(contentType string) bool {
	for _, t := range []string{"image/png", "image/jpeg", "image/webp"} {
		if strings.HasPrefix(contentType, t) {
			return true
		}
	}
	return false
}

func (h *Handler) saveImage(src io.Reader) (UploadResponse, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return UploadResponse{}, badUpload{"invalid image: " + err.Error()}
	}

	assetID := typeid.NewAssetID()
	filename := assetID + ".png"
	filePath := filepath.Join(h.dir, filename)

	out, err := os.Create(filePath)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("create asset file: %w", err)
	}
	defer out.Close()

	if err := png.Encode(out, img); err != nil {
		os.Remove(filePath)
		return UploadResponse{}, fmt.Errorf("encode png: %w", err)
	}

	bounds := img.Bounds()
	return UploadResponse{
		ID:     assetID,
		URL:    fmt.Sprintf("/assets/%s", filename),
		Kind:   KindImage,
		Type:   "png",
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

func (h *Handler) saveModel(src io.Reader, format design.ModelFormat) (UploadResponse, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("read model: %w", err)
	}
	parts, err := h.decoders[format](data)
	if err != nil {
		return UploadResponse{}, badUpload{"invalid model: " + err.Error()}
	}

	assetID := typeid.NewAssetID()
	filename := assetID + "." + string(format)
	if err := copyFile(filepath.Join(h.dir, filename), bytes.NewReader(data)); err != nil {
		return UploadResponse{}, fmt.Errorf("write model: %w", err)
	}

	size := Bounds(parts).Size()
	return UploadResponse{
		ID:         assetID,
		URL:        fmt.Sprintf("/assets/%s", filename),
		Kind:       KindModel,
		Type:       string(format),
		Dimensions: &design.Dimensions{Width: size.X(), Height: size.Y(), Depth: size.Z()},
	}, nil
}

// Serve returns an http.Handler that serves stored asset files with caching headers.
func (h *Handler) Serve() http.Handler {
	fs := http.FileServer(http.Dir(h.dir))
	return http.StripPrefix("/assets/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Asset IDs are unique, so files are immutable
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		fs.ServeHTTP(w, r)
	}))
}

// Delete removes an asset file from disk.
func (h *Handler) Delete(assetID string) error {
	for _, ext := range []string{".png", ".glb", ".gltf", ".obj"} {
		path := filepath.Join(h.dir, assetID+ext)
		if err := os.Remove(path); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, assetID)
}

// Remove handles DELETE /assets/{id}.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := typeid.Validate(id, typeid.PrefixAsset); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Delete(id); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "asset not found", http.StatusNotFound)
			return
		}
		slog.Error("delete asset", "error", err, "id", id)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// copyFile copies src reader to a file at dst path.
func copyFile(dst string, src io.Reader) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, src)
	return err
}
