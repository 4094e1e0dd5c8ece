package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pageset/internal/metrics"
	"github.com/local/pageset/internal/pageset"
	"github.com/local/pageset/internal/selection"
	"github.com/local/pageset/internal/session"
)

type createRequest struct {
	SourceRef string `json:"source_ref"`
	Tool      string `json:"tool"`
	Mode      string `json:"mode"`
}

type selectionView struct {
	Mode       selection.Mode `json:"mode"`
	Pages      []int          `json:"pages"`
	Expression string         `json:"expression"`
	Dropped    []string       `json:"dropped,omitempty"`
}

type sessionView struct {
	ID          string                   `json:"id"`
	Tool        session.Tool             `json:"tool"`
	Ops         []session.Op             `json:"ops"`
	PageCount   int                      `json:"page_count"`
	Pages       []pageset.PageDescriptor `json:"pages"`
	UndoDepth   int                      `json:"undo_depth"`
	RedoDepth   int                      `json:"redo_depth"`
	UndoLimit   int                      `json:"undo_limit"`
	RedoEnabled bool                     `json:"redo_enabled"`
	Dragging    bool                     `json:"dragging"`
	Selection   selectionView            `json:"selection"`
	Created     time.Time                `json:"created"`
}

func view(sess *session.Session) sessionView {
	undo, redo := sess.HistoryDepth()
	limit, redoOn := sess.HistoryLimits()
	return sessionView{
		ID:          sess.ID(),
		Tool:        sess.Tool(),
		Ops:         sess.Tool().Ops(),
		PageCount:   sess.PageCount(),
		Pages:       sess.Entries(),
		UndoDepth:   undo,
		RedoDepth:   redo,
		UndoLimit:   limit,
		RedoEnabled: redoOn,
		Dragging:    sess.Dragging(),
		Selection: selectionView{
			Mode:       sess.SelectionMode(),
			Pages:      append([]int{}, sess.ResolveSelection()...),
			Expression: sess.SelectionExpression(),
		},
		Created: sess.Created(),
	}
}

func thumbnailPath(sessionID string, sourceIndex int) string {
	return fmt.Sprintf("/sessions/%s/thumbnails/%d", sessionID, sourceIndex)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if mb := s.cfg.Server.MaxUploadMB; mb > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(mb)<<20)
	}
	data, req, err := s.readSource(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tool := session.ToolOrganize
	if req.Tool != "" {
		if tool, err = session.ParseTool(req.Tool); err != nil {
			writeError(w, r, err)
			return
		}
	}
	mode := selection.ModePick
	if req.Mode != "" {
		if mode, err = selection.ParseMode(req.Mode); err != nil {
			writeError(w, r, badRequest("%v", err))
			return
		}
	}
	if err := s.deps.Detector.RequirePDF(data); err != nil {
		writeError(w, r, err)
		return
	}
	layout, err := s.deps.Parse(data)
	if err != nil {
		writeError(w, r, badRequest("unreadable PDF: %v", err))
		return
	}

	id := s.deps.NewID()
	sess, err := session.New(id, data, layout, s.deps.Serializer, session.Options{
		Tool:       tool,
		HistoryCap: s.cfg.Engine.HistoryCap,
		Redo:       s.cfg.Engine.Redo,
		Strict:     s.cfg.Engine.Strict,
		Mode:       mode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	e := &entry{sess: sess, thumbs: s.renderThumbnails(r.Context(), id, data, sess.PageCount())}
	e.touch(time.Now())
	applyThumbnails(e)
	s.add(e)

	log.Info().
		Str("session_id", id).
		Str("tool", string(tool)).
		Int("pages", sess.PageCount()).
		Int("thumbnails", len(e.thumbs)).
		Msg("session created")
	writeJSON(w, http.StatusCreated, view(sess))
}

// readSource reads an uploaded file from a multipart form, or a JSON body
// naming a source reference.
func (s *Server) readSource(r *http.Request) ([]byte, createRequest, error) {
	var req createRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return nil, req, err
			}
			return nil, req, badRequest("invalid multipart form: %v", err)
		}
		req.Tool = r.FormValue("tool")
		req.Mode = r.FormValue("mode")
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, req, badRequest("missing file field: %v", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, req, fmt.Errorf("read upload: %w", err)
		}
		return data, req, nil
	}

	if err := decodeJSON(r, &req); err != nil {
		return nil, req, err
	}
	if req.SourceRef == "" {
		return nil, req, badRequest("source_ref or a multipart file is required")
	}
	if s.deps.Fetcher == nil {
		return nil, req, badRequest("remote sources are disabled")
	}
	if !s.cfg.Server.AllowLocalSources && !isRemoteRef(req.SourceRef) {
		return nil, req, badRequest("source_ref must be an http(s) or s3 URL")
	}
	ctx := r.Context()
	if t := s.cfg.Server.FetchTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	data, err := s.deps.Fetcher.Fetch(ctx, req.SourceRef)
	if err != nil {
		return nil, req, fmt.Errorf("fetch %s: %w", req.SourceRef, err)
	}
	return data, req, nil
}

func isRemoteRef(ref string) bool {
	for _, p := range []string{"http://", "https://", "s3://"} {
		if strings.HasPrefix(ref, p) {
			return true
		}
	}
	return false
}

// renderThumbnails renders previews keyed by source index. Failures leave
// pages without a thumbnail.
func (s *Server) renderThumbnails(ctx context.Context, id string, data []byte, pageCount int) map[int][]byte {
	thumbs := make(map[int][]byte, pageCount)
	if s.deps.Render == nil {
		return thumbs
	}
	rendered, err := s.deps.Render(ctx, data, pageCount)
	if err != nil {
		log.Warn().Err(err).Str("session_id", id).Int("rendered", len(rendered)).Msg("thumbnail rendering incomplete")
	}
	for _, th := range rendered {
		thumbs[th.SourceIndex] = th.JPEG
	}
	for i := 0; i < pageCount; i++ {
		_, ok := thumbs[i]
		metrics.IncThumbnail(ok)
	}
	return thumbs
}

// applyThumbnails points every descriptor with a rendered preview at it.
func applyThumbnails(e *entry) {
	id := e.sess.ID()
	for _, d := range e.sess.Entries() {
		if _, ok := e.thumbs[d.SourceIndex]; !ok {
			continue
		}
		if err := e.sess.Store().SetThumbnail(d.ID, thumbnailPath(id, d.SourceIndex)); err != nil {
			log.Warn().Err(err).Str("session_id", id).Str("page_id", d.ID).Msg("failed to set thumbnail")
		}
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	e, err := s.acquire(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer e.mu.Unlock()
	writeJSON(w, http.StatusOK, view(e.sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.remove(id) {
		writeError(w, r, errSessionNotFound)
		return
	}
	log.Info().Str("session_id", id).Msg("session closed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, r, badRequest("invalid source index %q", r.PathValue("index")))
		return
	}
	e, err := s.acquire(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jpg, ok := e.thumbs[idx]
	e.mu.Unlock()
	if !ok {
		http.Error(w, "thumbnail not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(jpg)
}

// Ops accepted by POST /sessions/{id}/ops besides the tool operations.
const (
	opCancelDrag session.Op = "cancel_drag"
	opReset      session.Op = "reset"
)

type opRequest struct {
	Op        session.Op `json:"op"`
	ID        string     `json:"id"`
	Direction string     `json:"direction"`
	Order     []string   `json:"order"`
	// Commit defaults to true; drag frames send false.
	Commit *bool `json:"commit"`
	To     int   `json:"to"`
}

type opResponse struct {
	sessionView
	Created *pageset.PageDescriptor `json:"created,omitempty"`
}

func (s *Server) handleOp(w http.ResponseWriter, r *http.Request) {
	var req opRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.acquire(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer e.mu.Unlock()

	created, err := applyOp(e, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := opResponse{sessionView: view(e.sess)}
	if created.ID != "" {
		resp.Created = &created
	}
	writeJSON(w, http.StatusOK, resp)
}

func applyOp(e *entry, req opRequest) (pageset.PageDescriptor, error) {
	sess := e.sess
	direction := func() (pageset.Direction, error) {
		if req.Direction == "" {
			return pageset.Clockwise, nil
		}
		d, err := pageset.ParseDirection(req.Direction)
		if err != nil {
			return d, badRequest("%v", err)
		}
		return d, nil
	}

	switch req.Op {
	case session.OpRotate:
		d, err := direction()
		if err != nil {
			return pageset.PageDescriptor{}, err
		}
		return pageset.PageDescriptor{}, sess.Rotate(req.ID, d)
	case session.OpRotateAll:
		d, err := direction()
		if err != nil {
			return pageset.PageDescriptor{}, err
		}
		return pageset.PageDescriptor{}, sess.RotateAll(d)
	case session.OpDelete:
		return pageset.PageDescriptor{}, sess.Delete(req.ID)
	case session.OpRestore:
		return pageset.PageDescriptor{}, sess.Restore(req.ID)
	case session.OpDuplicate:
		return sess.Duplicate(req.ID)
	case session.OpReorder:
		commit := req.Commit == nil || *req.Commit
		return pageset.PageDescriptor{}, sess.Reorder(req.Order, commit)
	case session.OpMove:
		return pageset.PageDescriptor{}, sess.Move(req.ID, req.To)
	case opCancelDrag:
		return pageset.PageDescriptor{}, sess.CancelDrag()
	case session.OpUndo:
		return pageset.PageDescriptor{}, sess.Undo()
	case session.OpRedo:
		return pageset.PageDescriptor{}, sess.Redo()
	case opReset:
		if err := sess.Initialize(); err != nil {
			return pageset.PageDescriptor{}, err
		}
		applyThumbnails(e)
		return pageset.PageDescriptor{}, nil
	}
	return pageset.PageDescriptor{}, badRequest("unknown op %q", req.Op)
}

type selectionRequest struct {
	Mode       string  `json:"mode"`
	Toggle     *int    `json:"toggle"`
	Expression *string `json:"expression"`
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Toggle != nil && req.Expression != nil {
		writeError(w, r, badRequest("toggle and expression are mutually exclusive"))
		return
	}
	e, err := s.acquire(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer e.mu.Unlock()
	sess := e.sess

	if req.Mode != "" {
		mode, err := selection.ParseMode(req.Mode)
		if err != nil {
			writeError(w, r, badRequest("%v", err))
			return
		}
		if mode != sess.SelectionMode() {
			if err := sess.SetSelectionMode(mode); err != nil {
				writeError(w, r, err)
				return
			}
		}
	}

	var dropped []string
	switch {
	case req.Toggle != nil:
		if _, err := sess.Toggle(*req.Toggle); err != nil {
			writeError(w, r, err)
			return
		}
	case req.Expression != nil:
		res, err := sess.SetRange(*req.Expression)
		if err != nil {
			writeError(w, r, err)
			return
		}
		dropped = res.Dropped
	}

	v := view(sess)
	v.Selection.Dropped = dropped
	writeJSON(w, http.StatusOK, v)
}
