package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/dealyard/internal/apperr"
	"github.com/zulandar/dealyard/internal/contract"
	"github.com/zulandar/dealyard/internal/contractlog"
	"github.com/zulandar/dealyard/internal/identity"
	"github.com/zulandar/dealyard/internal/models"
	"github.com/zulandar/dealyard/internal/notify"
	"github.com/zulandar/dealyard/internal/offer"
	"github.com/zulandar/dealyard/internal/proposal"
	"github.com/zulandar/dealyard/internal/step"
	"gorm.io/gorm"
)

type handlers struct {
	db     *gorm.DB
	offers *offer.Service
	steps  *step.Service
	logs   *contractlog.Service
}

// registerRoutes sets up every authenticated route on g.
func registerRoutes(g *gin.RouterGroup, h *handlers) {
	g.POST("/proposals", h.createProposal)
	g.GET("/proposals", h.listProposals)
	g.GET("/proposals/:id", h.showProposal)
	g.POST("/proposals/:id/transition", h.transitionProposal)
	g.POST("/proposals/:id/messages", h.postMessage)
	g.GET("/proposals/:id/messages", h.listMessages)
	g.GET("/proposals/:id/offers", h.listOffers)
	g.GET("/proposals/:id/logs", h.listProposalLogs)

	g.POST("/offers/:id/accept", h.acceptOffer)
	g.POST("/offers/:id/reject", h.rejectOffer)

	g.GET("/contracts", h.listContracts)
	g.GET("/contracts/:id", h.showContract)
	g.GET("/contracts/:id/logs", h.listContractLogs)

	g.POST("/steps/:id/approvals", h.submitApproval)
	g.POST("/steps/:id/files", h.attachFiles)

	g.POST("/logs", h.appendLog)

	g.GET("/notifications", h.inbox)
	g.POST("/notifications/:id/seen", h.markSeen)
}

func (h *handlers) health(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- proposals ---

type createProposalRequest struct {
	Kind          models.ProposalKind `json:"kind"`
	SubjectID     string              `json:"subject_id"`
	CounterpartID string              `json:"counterpart_id"`
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	Terms         string              `json:"terms"`
	Budget        *int64              `json:"budget"`
	Currency      string              `json:"currency"`
}

func (h *handlers) createProposal(c *gin.Context) {
	var req createProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := proposal.Create(c.Request.Context(), h.db, proposal.CreateOpts{
		Kind:          req.Kind,
		SubjectID:     req.SubjectID,
		CounterpartID: req.CounterpartID,
		Title:         req.Title,
		Description:   req.Description,
		Terms:         req.Terms,
		Budget:        req.Budget,
		Currency:      req.Currency,
	})
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *handlers) listProposals(c *gin.Context) {
	ctx := c.Request.Context()
	out, err := proposal.List(ctx, h.db, proposal.ListFilters{
		UserID: identity.UserID(ctx),
		Status: models.ProposalStatus(c.Query("status")),
		Kind:   models.ProposalKind(c.Query("kind")),
	})
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) showProposal(c *gin.Context) {
	p, err := proposal.Get(c.Request.Context(), h.db, c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, p)
}

type transitionRequest struct {
	Status models.ProposalStatus `json:"status" binding:"required"`
}

func (h *handlers) transitionProposal(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := proposal.Transition(c.Request.Context(), h.db, c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err, p)
		return
	}
	c.JSON(http.StatusOK, p)
}

type offerRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Terms    string `json:"terms"`
}

type postMessageRequest struct {
	Body        string        `json:"body"`
	Attachments []string      `json:"attachments"`
	Offer       *offerRequest `json:"offer"`
}

func (h *handlers) postMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	opts := proposal.PostOpts{Body: req.Body, Attachments: req.Attachments}
	if req.Offer != nil {
		opts.Offer = &offer.CreateOpts{Amount: req.Offer.Amount, Currency: req.Offer.Currency, Terms: req.Offer.Terms}
	}
	ctx := c.Request.Context()
	msg, err := proposal.PostMessage(ctx, h.db, c.Param("id"), opts)
	if err != nil {
		respondError(c, err, h.currentProposal(ctx, c.Param("id")))
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *handlers) listMessages(c *gin.Context) {
	out, err := proposal.ListMessages(c.Request.Context(), h.db, c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) listOffers(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := proposal.Get(ctx, h.db, c.Param("id")); err != nil {
		respondError(c, err, nil)
		return
	}
	out, err := offer.ListByProposal(ctx, h.db, c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) listProposalLogs(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := proposal.Get(ctx, h.db, c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	if !p.HasParty(identity.UserID(ctx)) {
		respondError(c, apperr.Unauthorized("api: list proposal logs", "not a party to proposal %s", p.ID), nil)
		return
	}
	out, err := contractlog.List(ctx, h.db, "", p.ID)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- offers ---

func (h *handlers) acceptOffer(c *gin.Context) {
	res, err := h.offers.Accept(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) rejectOffer(c *gin.Context) {
	res, err := h.offers.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- contracts ---

func (h *handlers) listContracts(c *gin.Context) {
	ctx := c.Request.Context()
	out, err := contract.List(ctx, h.db, contract.ListFilters{
		UserID: identity.UserID(ctx),
		Status: models.ContractStatus(c.Query("status")),
	})
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) showContract(c *gin.Context) {
	ctx := c.Request.Context()
	k, err := contract.Get(ctx, h.db, c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	if k.PartyOf(identity.UserID(ctx)) == "" {
		respondError(c, apperr.Unauthorized("api: show contract", "not a party to contract %s", k.ID), nil)
		return
	}
	c.JSON(http.StatusOK, k)
}

func (h *handlers) listContractLogs(c *gin.Context) {
	ctx := c.Request.Context()
	k, err := contract.Get(ctx, h.db, c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	if k.PartyOf(identity.UserID(ctx)) == "" {
		respondError(c, apperr.Unauthorized("api: list contract logs", "not a party to contract %s", k.ID), nil)
		return
	}
	out, err := contractlog.List(ctx, h.db, k.ID, "")
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- steps ---

type approvalRequest struct {
	Party    models.Party    `json:"party"`
	Decision models.Decision `json:"decision" binding:"required"`
	Note     string          `json:"note"`
}

func (h *handlers) submitApproval(c *gin.Context) {
	var req approvalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.steps.SubmitApproval(c.Request.Context(), c.Param("id"), step.SubmitOpts{
		Party:    req.Party,
		Decision: req.Decision,
		Note:     req.Note,
	})
	if err != nil {
		respondError(c, err, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

type filesRequest struct {
	Keys []string `json:"keys" binding:"required"`
}

func (h *handlers) attachFiles(c *gin.Context) {
	var req filesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.steps.AttachFiles(c.Request.Context(), c.Param("id"), req.Keys)
	if err != nil {
		respondError(c, err, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- logs ---

type appendLogRequest struct {
	ContractID     string           `json:"contract_id"`
	ProposalID     string           `json:"proposal_id"`
	Content        string           `json:"content"`
	Document       string           `json:"document"`
	Status         models.LogStatus `json:"status"`
	Reason         string           `json:"reason"`
	IsDoneContract bool             `json:"is_done_contract"`
	Override       bool             `json:"override"`
}

func (h *handlers) appendLog(c *gin.Context) {
	var req appendLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.logs.Append(c.Request.Context(), contractlog.AppendOpts{
		ContractID:     req.ContractID,
		ProposalID:     req.ProposalID,
		Content:        req.Content,
		Document:       req.Document,
		Status:         req.Status,
		Reason:         req.Reason,
		IsDoneContract: req.IsDoneContract,
		Override:       req.Override,
	})
	if err != nil {
		respondError(c, err, res)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// --- notifications ---

func (h *handlers) inbox(c *gin.Context) {
	out, err := notify.Inbox(h.db.WithContext(c.Request.Context()), identity.UserID(c.Request.Context()))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) markSeen(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	if err := notify.MarkSeen(h.db.WithContext(ctx), identity.UserID(ctx), uint(id)); err != nil {
		respondError(c, apperr.NotFound("api: mark seen", "notification", c.Param("id")), nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) currentProposal(ctx context.Context, id string) *models.Proposal {
	p, err := proposal.Get(ctx, h.db, id)
	if err != nil {
		return nil
	}
	return p
}
