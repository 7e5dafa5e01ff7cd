package httpserver

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kapeview/kapeview/internal/duckdb"
	"github.com/kapeview/kapeview/internal/evidence"
	"github.com/kapeview/kapeview/internal/model"
	"github.com/kapeview/kapeview/internal/query"
)

// UploadField is the multipart field carrying the archive.
const UploadField = "evidence_file"

// respond writes res as JSON, or maps err: input errors are 400 with the
// text as body, unknown ids 404, and stage failures 500 with res as body
// when there is one.
func respond[T any](c *gin.Context, res *T, err error) {
	if err == nil {
		c.JSON(http.StatusOK, res)
		return
	}
	var ie evidence.InputError
	switch {
	case errors.As(err, &ie):
		c.String(http.StatusBadRequest, ie.Error())
	case errors.Is(err, evidence.ErrNotFound), errors.Is(err, duckdb.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case res != nil:
		c.JSON(http.StatusInternalServerError, res)
	default:
		log.Printf("httpserver: %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleOverview(c *gin.Context) {
	ov, err := s.store.Overview(c.Request.Context(), recentCases)
	respond(c, ov, err)
}

func (s *Server) handlePreflight(c *gin.Context) {
	pf, err := s.svc.Preflight(c.Request.Context())
	respond(c, pf, err)
}

func (s *Server) handleEvidence(c *gin.Context) {
	d, err := s.svc.Detail(c.Request.Context(), c.Param("id"))
	respond(c, d, err)
}

func (s *Server) handlePage(c *gin.Context) {
	ds, ok := model.ParseDataset(c.Param("ds"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown dataset"})
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.store.EvidenceByID(ctx, id); err != nil {
		respond[model.PageResult](c, nil, err)
		return
	}
	page, err := s.store.QueryPage(ctx, id, ds, query.Decode(ds, c.Request.URL.Query()))
	respond(c, page, err)
}

func (s *Server) handleSecuritySummary(c *gin.Context) {
	if c.Param("ds") != string(model.DatasetSecurity) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.store.EvidenceByID(ctx, id); err != nil {
		respond[gin.H](c, nil, err)
		return
	}
	counts, err := s.store.SecuritySummary(ctx, id)
	if err != nil {
		respond[gin.H](c, nil, err)
		return
	}
	if counts == nil {
		counts = []model.EventIDCount{}
	}
	c.JSON(http.StatusOK, gin.H{"event_ids": counts})
}

func (s *Server) handleUpload(c *gin.Context) {
	hdr, err := c.FormFile(UploadField)
	if err != nil {
		respond[model.UploadResult](c, nil, evidence.ErrMissingFile)
		return
	}
	f, err := hdr.Open()
	if err != nil {
		respond[model.UploadResult](c, nil, err)
		return
	}
	defer f.Close()

	res, err := s.svc.Upload(c.Request.Context(), model.EvidenceUpload{
		Filename:        hdr.Filename,
		Body:            f,
		CaseID:          c.PostForm("case_id"),
		UploadedBy:      c.PostForm("uploaded_by"),
		SourceSystem:    c.PostForm("source_system"),
		AcquisitionTool: c.PostForm("acquisition_tool"),
		Notes:           c.PostForm("notes"),
	})
	respond(c, res, err)
}

func (s *Server) handleExtract(c *gin.Context) {
	res, err := s.svc.Extract(c.Request.Context(), c.PostForm("id"))
	respond(c, res, err)
}

func (s *Server) handleParse(c *gin.Context) {
	res, err := s.svc.Parse(c.Request.Context(), c.PostForm("id"))
	respond(c, res, err)
}
