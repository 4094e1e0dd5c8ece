package server

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pageset/internal/compiler"
	"github.com/local/pageset/internal/geometry"
	"github.com/local/pageset/internal/limiter"
	"github.com/local/pageset/internal/session"
	"github.com/local/pageset/internal/storage"
	"github.com/local/pageset/internal/store"
)

// Compile modes accepted by POST /sessions/{id}/compile.
const (
	modeStructural = "structural"
	modeSelection  = "selection"
	modeRemove     = "remove"
	modeSplit      = "split"
)

// Limiter keys.
const (
	breakerCompile = "compile"
	breakerUpload  = "s3-upload"
)

type previewSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// overlayRequest is an overlay whose box may be given in percent or in
// preview pixels instead of fractions.
type overlayRequest struct {
	compiler.Overlay
	Scale   string       `json:"scale,omitempty"`
	Preview *previewSize `json:"preview,omitempty"`
}

type compileRequest struct {
	Mode          string           `json:"mode"`
	CarryRotation bool             `json:"carry_rotation"`
	Overlays      []overlayRequest `json:"overlays"`
	Upload        bool             `json:"upload"`
}

type resultView struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Pages    int    `json:"pages"`
	Bytes    int    `json:"bytes"`
	Location string `json:"location,omitempty"`
	URL      string `json:"url"`
}

func (s *Server) overlays(reqs []overlayRequest) ([]compiler.Overlay, error) {
	out := make([]compiler.Overlay, 0, len(reqs))
	for i, o := range reqs {
		ov := o.Overlay
		if ov.Box != nil {
			box := *ov.Box
			switch {
			case o.Preview != nil:
				b, err := geometry.FromPreviewPixels(box.X, box.Y, box.Width, box.Height, o.Preview.Width, o.Preview.Height)
				if err != nil {
					return nil, badRequest("overlay %d: %v", i, err)
				}
				box = b
			case o.Scale == "percent":
				box = box.Fractions(geometry.Percent)
			case o.Scale != "" && o.Scale != "fraction":
				return nil, badRequest("overlay %d: unknown scale %q", i, o.Scale)
			}
			ov.Box = &box
		}
		if ov.Content.Kind == compiler.KindImage {
			if err := s.deps.Detector.RequireImage(ov.Content.Image); err != nil {
				return nil, fmt.Errorf("overlay %d: %w", i, err)
			}
		}
		out = append(out, ov)
	}
	return out, nil
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	overlays, err := s.overlays(req.Overlays)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Upload && s.deps.Uploads == nil {
		writeError(w, r, badRequest("uploads are not configured"))
		return
	}

	if s.deps.Limiter != nil {
		release, ok := s.deps.Limiter.Allow(breakerCompile)
		if !ok {
			writeError(w, r, limiter.ErrBusy)
			return
		}
		defer release()
	}

	e, err := s.acquire(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer e.mu.Unlock()

	ctx := r.Context()
	if t := s.cfg.Server.CompileTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	outputs, err := compileMode(ctx, e.sess, req, overlays)
	if err != nil {
		writeError(w, r, err)
		return
	}

	views := make([]resultView, 0, len(outputs))
	for _, out := range outputs {
		v, err := s.publish(ctx, e.sess, out, req.Upload)
		if err != nil {
			s.discard(e.sess.ID(), views)
			writeError(w, r, err)
			return
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": views})
}

// discard drops results already saved by a request that failed part way, so
// a split is stored whole or not at all. Uploaded objects are left in place.
func (s *Server) discard(sessionID string, views []resultView) {
	if len(views) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, v := range views {
		if err := s.deps.Results.Delete(ctx, v.ID); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Str("result_id", v.ID).Msg("failed to discard partial result")
		}
	}
}

func compileMode(ctx context.Context, sess *session.Session, req compileRequest, overlays []compiler.Overlay) ([]session.Output, error) {
	mode := req.Mode
	if mode == "" {
		mode = modeStructural
	}
	if len(overlays) > 0 && mode != modeStructural && mode != modeSelection {
		return nil, badRequest("overlays are not supported in %s mode", mode)
	}
	var out session.Output
	var err error
	switch mode {
	case modeStructural:
		out, err = sess.CompileStructural(ctx, overlays...)
	case modeSelection:
		out, err = sess.CompileSelection(ctx, req.CarryRotation, overlays...)
	case modeRemove:
		out, err = sess.CompileRemoval(ctx)
	case modeSplit:
		return sess.Split(ctx)
	default:
		return nil, badRequest("unknown compile mode %q", mode)
	}
	if err != nil {
		return nil, err
	}
	return []session.Output{out}, nil
}

// publish stores one output for download and, when asked, uploads it.
func (s *Server) publish(ctx context.Context, sess *session.Session, out session.Output, upload bool) (resultView, error) {
	res := store.Result{
		ID:        s.deps.NewID(),
		SessionID: sess.ID(),
		Tool:      string(sess.Tool()),
		Pages:     len(out.Pages),
		Created:   time.Now().UTC(),
		Data:      out.Data,
	}
	if upload {
		loc, err := s.upload(ctx, sess, out)
		if err != nil {
			return resultView{}, err
		}
		res.Location = loc
	}
	if err := s.deps.Results.Save(ctx, res); err != nil {
		return resultView{}, fmt.Errorf("save result: %w", err)
	}
	return resultView{
		ID:       res.ID,
		Label:    out.Label,
		Pages:    res.Pages,
		Bytes:    len(out.Data),
		Location: res.Location,
		URL:      "/results/" + res.ID,
	}, nil
}

func (s *Server) upload(ctx context.Context, sess *session.Session, out session.Output) (string, error) {
	lim := s.deps.Limiter
	if lim != nil && lim.IsOpen(ctx, breakerUpload) {
		return "", limiter.ErrCoolingDown
	}
	base := path.Join(s.cfg.Storage.Prefix, sess.ID(), fmt.Sprintf("%s_%s", sess.Tool(), keySafe(out.Label)))
	version, err := s.deps.Uploads.ListNextVersion(ctx, base)
	if err != nil {
		log.Warn().Err(err).Str("base_key", base).Msg("version listing failed, starting at 1")
	}
	key := storage.VersionedKey(base, version, ".pdf")
	loc, err := s.deps.Uploads.UploadFile(ctx, key, out.Data, &storage.FileMetadata{
		OriginalName: path.Base(key),
		ContentType:  "application/pdf",
		Metadata: map[string]string{
			"session": sess.ID(),
			"tool":    string(sess.Tool()),
			"pages":   out.Label,
		},
	})
	if err != nil {
		if lim != nil {
			lim.Open(ctx, breakerUpload)
		}
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if lim != nil {
		lim.Close(ctx, breakerUpload)
	}
	return loc, nil
}

// keySafe turns a page label like "3,1-2" into "3_1-2".
func keySafe(label string) string {
	if label == "" {
		return "empty"
	}
	return strings.ReplaceAll(label, ",", "_")
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Results.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Tool+"-"+res.ID+".pdf"))
	if res.Location != "" {
		w.Header().Set("X-Result-Location", res.Location)
	}
	_, _ = w.Write(res.Data)
}
