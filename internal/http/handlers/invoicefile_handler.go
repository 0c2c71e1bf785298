// Invoice file HTTP handlers.
//
// This file exposes REST endpoints for the uploaded invoice file registry:
//   - POST /invoice-files       (multipart upload + registration)
//   - GET  /invoice-files       (list, newest first)
//   - GET  /invoice-files/{id}  (fetch)
//
// The upload is stored on disk first and registered second; a file that
// fails parsing is removed again and never becomes a dispatch source.
package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/redwaygroup/ar-dispatch/internal/services"
)

// UploadInvoiceFile godoc
// @ID          uploadInvoiceFile
// @Summary     Upload an invoice file
// @Description Stores a CSV invoice export and registers it. The newest registered file becomes the default source for reports and dispatch jobs.
// @Tags        InvoiceFiles
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       file  formData  file  true  "Invoice CSV"
//
// @Success     201  {object}  domain.InvoiceFile
// @Failure     400  {object}  handlers.ErrorResponse  "Missing or unparsable file"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /invoice-files [post]
func (h *Handlers) UploadInvoiceFile(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field 'file' is required")
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	dst := filepath.Join(h.uploadDir, uuid.NewString()+filepath.Ext(fh.Filename))
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	f, err := h.fileSvc.Register(c.Request.Context(), dst, filepath.Base(fh.Filename))
	if err != nil {
		os.Remove(dst)
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	ok(c, http.StatusCreated, f)
}

// ListInvoiceFiles godoc
// @ID          listInvoiceFiles
// @Summary     List registered invoice files
// @Tags        InvoiceFiles
// @Produce     json
//
// @Param       limit  query  int  false  "Max files"  minimum(1) maximum(100) default(50)
//
// @Success     200  {array}   domain.InvoiceFile
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /invoice-files [get]
func (h *Handlers) ListInvoiceFiles(c *gin.Context) {
	files, err := h.fileSvc.List(c.Request.Context(), limitParam(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, files)
}

// GetInvoiceFile godoc
// @ID          getInvoiceFile
// @Summary     Fetch one registered invoice file
// @Tags        InvoiceFiles
// @Produce     json
//
// @Param       id  path  string  true  "Invoice file ID"
//
// @Success     200  {object}  domain.InvoiceFile
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /invoice-files/{id} [get]
func (h *Handlers) GetInvoiceFile(c *gin.Context) {
	f, err := h.fileSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrInvoiceFileNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "invoice file not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, f)
}
