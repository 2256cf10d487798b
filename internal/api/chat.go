package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dietnavigator/nutrition-chat/internal/chat"
	"github.com/dietnavigator/nutrition-chat/internal/session"
	"github.com/go-chi/chi/v5"
)

const defaultMaxUploadBytes = 10 << 20

var (
	errUnsupportedMedia = errors.New("uploaded file is not an image")
	errInvalidBody      = errors.New("invalid request body")
)

// ChatHandler serves POST /chat.
type ChatHandler struct {
	svc            ChatService
	maxUploadBytes int64
}

// NewChatHandler creates a chat handler. Request bodies larger than
// maxUploadBytes are rejected with 413.
func NewChatHandler(svc ChatService, maxUploadBytes int64) *ChatHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &ChatHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// RegisterRoutes registers the chat route.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.HandleChat)
}

// HandleChat accepts JSON {"prompt"} or multipart prompt/image and replies
// with {"reply"}.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	store := session.FromContext(r.Context())
	if store == nil {
		Error(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	req, err := h.decode(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge), errors.Is(err, multipart.ErrMessageTooLarge):
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, errUnsupportedMedia):
			Error(w, http.StatusUnsupportedMediaType, err.Error())
		default:
			Error(w, http.StatusBadRequest, errInvalidBody.Error())
		}
		return
	}

	if err := req.Validate(); err != nil {
		Error(w, http.StatusBadRequest, "Empty prompt")
		return
	}

	reply, err := h.svc.Ask(r.Context(), store, req)
	if err != nil {
		slog.Error("Chat error", "error", err)
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	JSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (h *ChatHandler) decode(r *http.Request) (chat.Request, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return h.decodeMultipart(r)
	}

	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return chat.Request{}, err
	}
	return chat.Request{Prompt: body.Prompt}, nil
}

func (h *ChatHandler) decodeMultipart(r *http.Request) (chat.Request, error) {
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		return chat.Request{}, err
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	req := chat.Request{Prompt: r.FormValue("prompt")}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return chat.Request{}, err
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return chat.Request{}, err
	}
	if len(data) == 0 {
		return req, nil
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return chat.Request{}, errUnsupportedMedia
	}
	req.Image = &chat.Image{Data: data, MIMEType: mimeType, Filename: header.Filename}
	return req, nil
}
