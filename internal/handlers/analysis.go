package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"skinscope/internal/assistant"
	"skinscope/internal/common"
	"skinscope/internal/middleware"
	"skinscope/internal/models"
	"skinscope/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Ошибки классификации и чата возвращаются со статусом 200 и полем error:
// клиент должен смотреть на тело ответа, а не только на статус.

// HandlePredict классифицирует загруженный снимок (поле формы "file").
// Ответ: {"disease", "image_data"} или {"error"}.
func (h *Handler) HandlePredict(c *gin.Context) {
	if !h.Classifier.Ready() {
		c.JSON(http.StatusOK, gin.H{"error": "Model is not loaded. Please check server logs."})
		return
	}

	// Небольшой запас сверх лимита файла на служебные части multipart.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes+1<<20)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusOK, gin.H{"error": h.tooLargeMessage()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"error": "No file part"})
		return
	}
	if fileHeader.Filename == "" {
		c.JSON(http.StatusOK, gin.H{"error": "No selected file"})
		return
	}

	data, err := services.ReadUploadedImage(fileHeader, h.MaxUploadBytes)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": h.predictErrorMessage(err)})
		return
	}

	disease, err := h.Classifier.Classify(c.Request.Context(), data)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": h.predictErrorMessage(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"disease":    disease,
		"image_data": services.EncodeImageData(data),
	})
}

func (h *Handler) tooLargeMessage() string {
	return fmt.Sprintf("File is too large (max %d MB).", h.MaxUploadBytes>>20)
}

func (h *Handler) predictErrorMessage(err error) string {
	switch {
	case errors.Is(err, common.ErrModelUnavailable):
		return "Model is not loaded. Please check server logs."
	case errors.Is(err, common.ErrInvalidImage):
		return "Invalid image. Please upload a JPEG, PNG, GIF, BMP or WebP photo."
	case errors.Is(err, services.ErrUploadTooLarge):
		return h.tooLargeMessage()
	case errors.Is(err, services.ErrEmptyUpload):
		return "Uploaded file is empty."
	default:
		log.Error().Err(err).Msg("Ошибка классификации")
		return "An error occurred during prediction."
	}
}

// chatBodyLimit - предел тела /chatbot: изображение в base64 (4/3 от MaxUploadBytes) плюс текстовые поля.
func (h *Handler) chatBodyLimit() int64 {
	return (h.MaxUploadBytes+2)/3*4 + 64<<10
}

type chatRequest struct {
	Disease   string `json:"disease"`
	Message   string `json:"message"`
	ImageData string `json:"imageData"`
	Language  string `json:"language"`
}

// HandleChatbot отвечает на вопрос о найденном заболевании.
// Если в запросе есть изображение, заболевание и вопрос, пара вопрос/ответ сохраняется в историю.
func (h *Handler) HandleChatbot(c *gin.Context) {
	if !h.Assistant.Ready() {
		c.JSON(http.StatusOK, gin.H{"error": "Assistant is not configured."})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.chatBodyLimit())

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusOK, gin.H{"error": "Request is too large."})
			return
		}
		c.JSON(http.StatusOK, gin.H{"error": "Invalid request body."})
		return
	}
	req.Disease = strings.TrimSpace(req.Disease)
	req.Message = strings.TrimSpace(req.Message)
	if req.Disease == "" {
		c.JSON(http.StatusOK, gin.H{"error": "Disease not provided."})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusOK, gin.H{"error": "No message provided."})
		return
	}
	if strings.TrimSpace(req.Language) == "" {
		req.Language = assistant.DefaultLanguage
	}

	id, _ := middleware.CurrentIdentity(c)

	answer, err := h.Assistant.Ask(c.Request.Context(), req.Disease, req.Message, req.Language)
	if err != nil {
		if errors.Is(err, common.ErrAssistantUnavailable) {
			c.JSON(http.StatusOK, gin.H{"error": "Assistant is not configured."})
			return
		}
		log.Error().Err(err).Int64("user_id", id.UserID).Msg("Ошибка запроса к ассистенту")
		c.JSON(http.StatusOK, gin.H{"error": "Failed to get response from the assistant."})
		return
	}

	if req.ImageData != "" {
		_, err := h.History.AppendHistory(c.Request.Context(), models.HistoryRecord{
			UserID:    id.UserID,
			ImageData: req.ImageData,
			Disease:   req.Disease,
			Question:  req.Message,
			Answer:    answer,
		})
		if err != nil {
			log.Error().Err(err).Int64("user_id", id.UserID).Msg("Ошибка сохранения истории")
			c.JSON(http.StatusOK, gin.H{"error": "Failed to save history."})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"response": answer})
}

// HandleDeleteHistory удаляет запись истории текущего пользователя.
// success=false, если записи нет или она чужая.
func (h *Handler) HandleDeleteHistory(c *gin.Context) {
	recordID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || recordID <= 0 {
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}

	id, _ := middleware.CurrentIdentity(c)
	deleted, err := h.History.DeleteHistory(c.Request.Context(), id.UserID, recordID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", id.UserID).Int64("history_id", recordID).Msg("Ошибка удаления истории")
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": deleted})
}
