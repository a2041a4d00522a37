package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/bobg/posts"
	"github.com/bobg/posts/publish"
	"github.com/bobg/posts/vote"
)

type postRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Author  string `json:"author"`
}

func (r postRequest) record() posts.ContentRecord {
	return posts.ContentRecord{Title: r.Title, Content: r.Content, Author: r.Author}
}

type errorResponse struct {
	Error      string          `json:"error"`
	Stage      publish.Stage   `json:"stage,omitempty"`
	Reason     vote.Reason     `json:"reason,omitempty"`
	ContentRef posts.ContentID `json:"contentRef,omitempty"`
	Receipt    *posts.Receipt  `json:"receipt,omitempty"`
}

func (s *Server) createPost(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Stage: publish.StageValidation})
		return
	}
	res, err := s.Publisher.Publish(c.Request.Context(), req.record())
	if err != nil {
		s.publishError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) storeContent(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Stage: publish.StageValidation})
		return
	}
	ref, err := s.Publisher.StoreContent(c.Request.Context(), req.record())
	if err != nil {
		s.publishError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"contentRef": ref})
}

// legacyCreatePost stores content only,
// answering in the shape the earlier backend used.
func (s *Server) legacyCreatePost(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Title == "" || req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title and content are required"})
		return
	}
	ref, err := s.Publisher.StoreContent(c.Request.Context(), req.record())
	if err != nil {
		s.publishError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"ipfsHash": ref,
		"message":  "Post stored. Anchor it with POST /anchors.",
	})
}

func (s *Server) anchor(c *gin.Context) {
	var req struct {
		ContentRef string `json:"contentRef"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Stage: publish.StageValidation})
		return
	}
	res, err := s.Publisher.Anchor(c.Request.Context(), posts.ContentID(req.ContentRef))
	if err != nil {
		s.publishError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) publishError(c *gin.Context, err error) {
	var e *publish.Error
	if !errors.As(err, &e) {
		s.logFor(c).WithError(err).Error("unexpected publish error")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(publishStatus(e), errorResponse{
		Error:      e.Err.Error(),
		Stage:      e.Stage,
		ContentRef: e.ContentRef,
		Receipt:    e.Receipt,
	})
}

func publishStatus(e *publish.Error) int {
	switch e.Stage {
	case publish.StageValidation:
		return http.StatusBadRequest
	case publish.StageContent:
		if errors.Is(e.Err, posts.ErrNotFound) {
			return http.StatusNotFound
		}
		return http.StatusServiceUnavailable
	case publish.StageLedger:
		if errors.Is(e.Err, posts.ErrNotConfigured) {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case publish.StageIndeterminate:
		return http.StatusAccepted
	}
	return http.StatusInternalServerError
}

func (s *Server) listPosts(c *gin.Context) {
	merged, err := s.Aggregator.ListMergedPosts(c.Request.Context())
	if err != nil {
		c.JSON(ledgerStatus(err), errorResponse{Error: err.Error()})
		return
	}
	if merged == nil {
		merged = []posts.MergedPost{}
	}
	c.JSON(http.StatusOK, gin.H{"posts": merged})
}

// legacyPost is a merged post in the shape the earlier front end reads:
// numbers as decimal strings and the timestamp in Unix seconds.
type legacyPost struct {
	ID        string          `json:"id"`
	Creator   string          `json:"creator"`
	IPFSHash  posts.ContentID `json:"ipfsHash"`
	Rating    string          `json:"rating"`
	Timestamp string          `json:"timestamp"`
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	Author    string          `json:"author"`
}

func toLegacyPost(m posts.MergedPost) legacyPost {
	return legacyPost{
		ID:        strconv.FormatUint(m.PostID, 10),
		Creator:   m.Creator,
		IPFSHash:  m.ContentRef,
		Rating:    strconv.FormatInt(m.Rating, 10),
		Timestamp: strconv.FormatInt(m.CreatedAt.Unix(), 10),
		Title:     m.Title,
		Content:   m.Content,
		Author:    m.Author,
	}
}

func (s *Server) legacyListPosts(c *gin.Context) {
	merged, err := s.Aggregator.ListMergedPosts(c.Request.Context())
	if err != nil {
		c.JSON(ledgerStatus(err), gin.H{"error": err.Error()})
		return
	}
	result := make([]legacyPost, 0, len(merged))
	for _, m := range merged {
		result = append(result, toLegacyPost(m))
	}
	c.JSON(http.StatusOK, gin.H{"posts": result})
}

func (s *Server) getPost(c *gin.Context) {
	postID, err := strconv.ParseUint(c.Param("postID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "bad post id"})
		return
	}
	m, err := s.Aggregator.GetMergedPost(c.Request.Context(), postID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, m)
	case errors.Is(err, posts.ErrNotFound), errors.Is(err, posts.ErrStoreUnavailable), errors.Is(err, posts.ErrUndecodable):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error(), ContentRef: m.ContentRef})
	default:
		c.JSON(ledgerStatus(err), errorResponse{Error: err.Error()})
	}
}

func ledgerStatus(err error) int {
	switch {
	case errors.Is(err, posts.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, posts.ErrPostNotFound):
		return http.StatusNotFound
	case errors.Is(err, posts.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusBadGateway
}

func (s *Server) getContent(c *gin.Context) {
	ref, err := posts.ParseContentID(c.Param("contentRef"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	rec, err := s.Aggregator.GetContent(c.Request.Context(), ref)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, rec)
	case errors.Is(err, posts.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error(), ContentRef: ref})
	case errors.Is(err, posts.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error(), ContentRef: ref})
	default:
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error(), ContentRef: ref})
	}
}

func (s *Server) castVote(c *gin.Context) {
	postID, err := strconv.ParseUint(c.Param("postID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "bad post id"})
		return
	}
	var req struct {
		Direction string `json:"direction"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	dir, err := posts.ParseDirection(req.Direction)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	res, err := s.Voter.CastVote(c.Request.Context(), postID, dir)
	if err != nil {
		var e *vote.Error
		if !errors.As(err, &e) {
			c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		c.JSON(voteStatus(e.Reason), errorResponse{Error: e.Err.Error(), Reason: e.Reason, Receipt: e.Receipt})
		return
	}
	c.JSON(http.StatusOK, res)
}

func voteStatus(r vote.Reason) int {
	switch r {
	case vote.ReasonNotFound:
		return http.StatusNotFound
	case vote.ReasonRejected:
		return http.StatusConflict
	case vote.ReasonUnreachable:
		return http.StatusBadGateway
	case vote.ReasonIndeterminate:
		return http.StatusAccepted
	case vote.ReasonNotConfigured:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) receiptStatus(c *gin.Context) {
	intent := posts.Intent(c.Param("intent"))
	if intent != posts.IntentCreate && intent != posts.IntentVote {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "intent must be create or vote"})
		return
	}
	if s.Ledger == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: posts.ErrNotConfigured.Error()})
		return
	}
	r := posts.Receipt{ID: c.Param("id"), Intent: intent}
	st, err := s.Ledger.Status(c.Request.Context(), r)
	if err != nil {
		c.JSON(ledgerStatus(err), errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": r.ID, "intent": intent, "status": st, "final": st.Terminal()})
}

func (s *Server) ledgerInfo(c *gin.Context) {
	if s.Info == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract not deployed yet"})
		return
	}
	c.JSON(http.StatusOK, s.Info)
}

func (s *Server) health(c *gin.Context) {
	contentOK := s.ping(c.Request.Context(), s.Content)
	var ledgerOK bool
	if s.Ledger != nil {
		ledgerOK = s.ping(c.Request.Context(), s.Ledger)
	}
	status := "ok"
	if !contentOK || !ledgerOK {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":                status,
		"contentStoreConnected": contentOK,
		"ledgerConnected":       ledgerOK,
	})
}

func (s *Server) legacyHealth(c *gin.Context) {
	connected := func(ok bool) string {
		if ok {
			return "connected"
		}
		return "disconnected"
	}
	ledgerOK := s.Ledger != nil && s.ping(c.Request.Context(), s.Ledger)
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"ipfs":     connected(s.ping(c.Request.Context(), s.Content)),
		"contract": connected(ledgerOK),
	})
}

// ping reports whether x answers a Ping.
// Something that cannot ping is assumed connected.
func (s *Server) ping(ctx context.Context, x interface{}) bool {
	if x == nil {
		return false
	}
	p, ok := x.(posts.Pinger)
	if !ok {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, s.PingTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		s.Log.WithError(err).Warn("ping failed")
		return false
	}
	return true
}
