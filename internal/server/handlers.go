package server

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"contractgen/internal/backend"
	"contractgen/internal/client"
	"contractgen/pkg/contractapi"
)

// assetRoute is the first segment of the template document download route.
const assetRoute = "modelo"

func (s *Server) listTemplates(c *gin.Context) {
	out, err := s.svc.ListTemplates(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	if out == nil {
		out = []contractapi.Template{}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getTemplate(c *gin.Context) {
	out, err := s.svc.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createTemplate(c *gin.Context) {
	var in contractapi.Template
	if !s.bind(c, &in) {
		return
	}
	out, err := s.svc.CreateTemplate(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (s *Server) updateTemplate(c *gin.Context) {
	var in contractapi.Template
	if !s.bind(c, &in) {
		return
	}
	out, err := s.svc.UpdateTemplate(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) deleteTemplate(c *gin.Context) {
	if err := s.svc.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) uploadTemplateAsset(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		s.respondError(c, backend.Invalid("upload_template_asset", "file is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer func() { _ = f.Close() }()
	key, err := s.svc.UploadTemplateAsset(c.Request.Context(), fh.Filename, f)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"caminhoTemplate": key})
}

func (s *Server) fetchResolvedData(c *gin.Context) {
	params := map[string]string{}
	if !s.bind(c, &params) {
		return
	}
	data, err := s.svc.FetchResolvedData(c.Request.Context(), c.Param("modeloId"), params)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dados": data})
}

func (s *Server) generateContract(c *gin.Context) {
	var in client.GenerateRequest
	if !s.bind(c, &in) {
		return
	}
	res, err := s.svc.GenerateContract(c.Request.Context(), c.Param("modeloId"), in.Parameters, in.Force)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) fetchHistory(c *gin.Context) {
	var in client.HistoryRequest
	if !s.bind(c, &in) {
		return
	}
	out, err := s.svc.FetchGenerationHistory(c.Request.Context(), c.Param("modeloId"), in.Parameters)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if out == nil {
		out = []contractapi.Instance{}
	}
	c.JSON(http.StatusOK, gin.H{"historico": out})
}

func (s *Server) listActiveContracts(c *gin.Context) {
	if c.Param("first") != "vigentes" {
		s.respondError(c, backend.NotFound("list_active_contracts", "route not found"))
		return
	}
	out, err := s.svc.ListActiveContracts(c.Request.Context(), c.Query("modeloId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if out == nil {
		out = []contractapi.Instance{}
	}
	c.JSON(http.StatusOK, gin.H{"contratos": out})
}

// download serves /contratos/modelo/:modeloId/download and
// /contratos/:modeloId/:hash/download.
func (s *Server) download(c *gin.Context) {
	var (
		d   backend.Download
		err error
	)
	first, second := c.Param("first"), c.Param("second")
	if first == assetRoute {
		d, err = s.svc.DownloadTemplateAsset(c.Request.Context(), second)
	} else {
		version := 0
		if raw := c.Query("versao"); raw != "" {
			version, err = strconv.Atoi(raw)
			if err != nil || version < 1 {
				s.respondDownloadError(c, backend.Invalid("download_generated_contract", "invalid version"))
				return
			}
		}
		d, err = s.svc.DownloadGeneratedContract(c.Request.Context(), first, second, version)
	}
	if err != nil {
		s.respondDownloadError(c, err)
		return
	}
	contentType := d.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if d.Name != "" {
		c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.Name}))
	}
	c.Data(http.StatusOK, contentType, d.Data)
}

func (s *Server) bind(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		s.respondError(c, backend.Invalid(c.FullPath(), "invalid request body"))
		return false
	}
	return true
}

// respondError writes {"message"} with the status carried by err. Internal
// failures are logged and reported without detail.
func (s *Server) respondError(c *gin.Context, err error) {
	status, msg := s.classify(c, err)
	c.AbortWithStatusJSON(status, gin.H{"message": msg})
}

// respondDownloadError mirrors respondError with the {"mensagem"} envelope
// used by download routes.
func (s *Server) respondDownloadError(c *gin.Context, err error) {
	status, msg := s.classify(c, err)
	c.AbortWithStatusJSON(status, gin.H{"mensagem": msg})
}

func (s *Server) classify(c *gin.Context, err error) (int, string) {
	status := backend.StatusOf(err)
	var be *backend.Error
	if status < http.StatusInternalServerError && errors.As(err, &be) {
		return status, be.Error()
	}
	s.log.Error("request failed", "path", c.FullPath(), "error", err)
	return status, http.StatusText(status)
}
