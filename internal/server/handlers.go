package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"stageline.dev/stageline/internal/actions"
	slerrors "stageline.dev/stageline/internal/errors"
)

// revisionBody is the optional body of stage and unstage
type revisionBody struct {
	Revision string `json:"revision"`
}

// messageBody is the optional body of the metadata transitions
type messageBody struct {
	Message string `json:"message"`
}

// bindOptional decodes a JSON body when one was sent
func (s *Server) bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		s.fail(c, s.logger, slerrors.Wrap(slerrors.KindInvalidInput, "decode body", err, "malformed request body"))
		return false
	}
	return true
}

func (s *Server) changeNumber(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("number"))
	if err != nil || n <= 0 {
		s.fail(c, s.logger, slerrors.New(slerrors.KindInvalidInput, "parse change", "invalid change number %q", c.Param("number")))
		return 0, false
	}
	return n, true
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.rt.Store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "Unavailable"})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: ServiceVersion})
}

// handleImport handles POST /v1/changes
func (s *Server) handleImport(c *gin.Context) {
	var op actions.ImportChange
	if !s.bindOptional(c, &op) {
		return
	}
	s.execute(c, op)
}

// handleGetChange handles GET /v1/changes/:number
func (s *Server) handleGetChange(c *gin.Context) {
	number, ok := s.changeNumber(c)
	if !ok {
		return
	}
	change, err := s.rt.Engine.Change(c.Request.Context(), number)
	if err != nil {
		s.fail(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, change)
}

// handleStage handles POST /v1/changes/:number/stage
func (s *Server) handleStage(c *gin.Context) {
	number, ok := s.changeNumber(c)
	if !ok {
		return
	}
	var body revisionBody
	if !s.bindOptional(c, &body) {
		return
	}
	s.execute(c, actions.Stage{Change: number, Revision: body.Revision})
}

// handleUnstage handles POST /v1/changes/:number/unstage
func (s *Server) handleUnstage(c *gin.Context) {
	number, ok := s.changeNumber(c)
	if !ok {
		return
	}
	var body revisionBody
	if !s.bindOptional(c, &body) {
		return
	}
	s.execute(c, actions.Unstage{Change: number, Revision: body.Revision})
}

// handleReview handles POST /v1/changes/:number/review
func (s *Server) handleReview(c *gin.Context) {
	number, ok := s.changeNumber(c)
	if !ok {
		return
	}
	var op actions.Review
	if !s.bindOptional(c, &op) {
		return
	}
	op.Change = number
	s.execute(c, op)
}

// handleDefer handles POST /v1/changes/:number/defer
func (s *Server) handleDefer(c *gin.Context) {
	number, body, ok := s.messageRequest(c)
	if ok {
		s.execute(c, actions.Defer{Change: number, Message: body.Message})
	}
}

// handleReopen handles POST /v1/changes/:number/reopen
func (s *Server) handleReopen(c *gin.Context) {
	number, body, ok := s.messageRequest(c)
	if ok {
		s.execute(c, actions.Reopen{Change: number, Message: body.Message})
	}
}

// handleAbandon handles POST /v1/changes/:number/abandon
func (s *Server) handleAbandon(c *gin.Context) {
	number, body, ok := s.messageRequest(c)
	if ok {
		s.execute(c, actions.Abandon{Change: number, Message: body.Message})
	}
}

func (s *Server) messageRequest(c *gin.Context) (int, messageBody, bool) {
	var body messageBody
	number, ok := s.changeNumber(c)
	if !ok || !s.bindOptional(c, &body) {
		return 0, body, false
	}
	return number, body, true
}

// handleChangeStatus handles POST /v1/changes/:number/status
func (s *Server) handleChangeStatus(c *gin.Context) {
	number, ok := s.changeNumber(c)
	if !ok {
		return
	}
	var op actions.ChangeStatus
	if !s.bindOptional(c, &op) {
		return
	}
	op.Change = number
	s.execute(c, op)
}

// handleNewBuild handles POST /v1/branches/:branch/builds
func (s *Server) handleNewBuild(c *gin.Context) {
	var op actions.NewBuild
	if !s.bindOptional(c, &op) {
		return
	}
	op.Branch = c.Param("branch")
	s.execute(c, op)
}

// handleRebuild handles POST /v1/branches/:branch/staging/rebuild
func (s *Server) handleRebuild(c *gin.Context) {
	s.execute(c, actions.RebuildStaging{Branch: c.Param("branch")})
}

// handleListStaging handles GET /v1/staging?ref=&destination=
func (s *Server) handleListStaging(c *gin.Context) {
	s.execute(c, actions.ListStaging{Ref: c.Query("ref"), Destination: c.Query("destination")})
}

// handleApprove handles POST /v1/builds/:id/approve
func (s *Server) handleApprove(c *gin.Context) {
	var op actions.ApproveBuild
	if !s.bindOptional(c, &op) {
		return
	}
	op.Build = c.Param("id")
	s.execute(c, op)
}

// handleReject handles POST /v1/builds/:id/reject
func (s *Server) handleReject(c *gin.Context) {
	var op actions.RejectBuild
	if !s.bindOptional(c, &op) {
		return
	}
	op.Build = c.Param("id")
	s.execute(c, op)
}
