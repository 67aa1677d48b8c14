package docsync

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bitbucket.org/mmdatafocus/docs_backend/models"
	"bitbucket.org/mmdatafocus/docs_backend/utils"
)

func respondError(c *gin.Context, err error) {
	c.JSON(utils.HTTPStatus(err), gin.H{"error": err.Error()})
}

func documentId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return 0, false
	}
	return id, true
}

func CreateDocumentHandler(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewDocument
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		doc, err := s.CreateDocument(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, doc)
	}
}

func GetDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := documentId(c)
		if !ok {
			return
		}
		businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
		doc, err := models.GetDocument(c.Request.Context(), businessId, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

func ListDocumentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter models.DocumentFilter
		if err := c.ShouldBindQuery(&filter); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter"})
			return
		}
		businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
		result, err := models.ListDocuments(c.Request.Context(), businessId, &filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func UpdateDocumentHandler(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := documentId(c)
		if !ok {
			return
		}
		var input models.UpdateDocumentInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		message, err := s.UpdateDocument(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": message})
	}
}

func DeleteDocumentHandler(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := documentId(c)
		if !ok {
			return
		}
		if err := s.DeleteDocument(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "DOCUMENT_DELETED"})
	}
}

func SyncDocumentHandler(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := documentId(c)
		if !ok {
			return
		}
		message, err := s.SyncDocument(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": message})
	}
}

func ResyncDocumentHandler(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := documentId(c)
		if !ok {
			return
		}
		message, err := s.ResyncDocument(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": message})
	}
}

func UnsyncDocumentHandler(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := documentId(c)
		if !ok {
			return
		}
		message, err := s.UnsyncDocument(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": message})
	}
}

func StatisticsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
		var filter models.StatisticsFilter
		if err := c.ShouldBindQuery(&filter); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		stats, err := models.GetDocumentStatistics(c.Request.Context(), businessId, &filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func UploadDocumentHandler(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
			return
		}
		defer file.Close()

		result, err := s.UploadDocument(c.Request.Context(), fileHeader.Filename, fileHeader.Size, file)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func UnloadDocumentHandler(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Key string `json:"key" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
			return
		}
		if err := s.RemoveUpload(c.Request.Context(), req.Key); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func DownloadDocumentHandler(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := documentId(c)
		if !ok {
			return
		}
		url, err := s.DownloadDocument(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url})
	}
}

func ExportDocumentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter models.DocumentFilter
		if err := c.ShouldBindQuery(&filter); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter"})
			return
		}
		businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
		docs, err := models.ExportDocuments(c.Request.Context(), businessId, &filter)
		if err != nil {
			respondError(c, err)
			return
		}

		buf, err := BuildDocumentsWorkbook(docs)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="documents.xlsx"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	}
}
