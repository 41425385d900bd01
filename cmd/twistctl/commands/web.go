package commands

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/joint"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/pose"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/rig"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/scene"
)

//go:embed templates/*
var templateFS embed.FS

var tmpl = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	maxRequestBody = 1 << 20
	statePushRate  = 10
	wsWriteWait    = time.Second
)

var errBadRequest = errors.New("bad request")

// Actions accepted by /api/control.
var controlActions = []string{
	"save_pose", "load_pose", "delete_pose",
	"play", "stop", "loop",
	"symmetric", "publishing", "policy",
	"reset", "zero",
}

// editRequest sets one joint.
type editRequest struct {
	Joint  int     `json:"joint" jsonschema:"joint index in model order"`
	Value  float64 `json:"value" jsonschema:"target angle in radians, clamped to the joint limits"`
	Mirror *bool   `json:"mirror,omitempty" jsonschema:"also set the opposite-side joint; defaults to symmetric mode"`
}

// controlRequest runs a pose, playback or mode command.
type controlRequest struct {
	Action string   `json:"action" jsonschema:"command to run"`
	Name   string   `json:"name,omitempty" jsonschema:"pose or scene name, or the policy for the policy action"`
	Value  *bool    `json:"value,omitempty" jsonschema:"switch state for loop, symmetric and publishing"`
	Interp *float64 `json:"interp_s,omitempty" jsonschema:"transition seconds for load_pose, reset and zero"`
}

// sceneRequest replaces the steps of a scene.
type sceneRequest struct {
	Loop  bool          `json:"loop,omitempty" jsonschema:"repeat until stopped"`
	Steps []stepRequest `json:"steps" jsonschema:"steps in playback order"`
}

type stepRequest struct {
	Pose   string   `json:"pose" jsonschema:"pose name"`
	Hold   float64  `json:"hold_s,omitempty" jsonschema:"seconds to hold the pose after arriving"`
	Interp *float64 `json:"interp_s,omitempty" jsonschema:"seconds to move to the pose, default 1"`
}

// requestSchemas returns the JSON schemas of the control panel requests for
// model, keyed by request name.
func requestSchemas(model *joint.Model) (map[string]*jsonschema.Schema, error) {
	edit, err := jsonschema.For[editRequest](&jsonschema.ForOptions{})
	if err != nil {
		return nil, err
	}
	lo, hi := 0.0, float64(model.Len()-1)
	edit.Properties["joint"].Minimum = &lo
	edit.Properties["joint"].Maximum = &hi

	control, err := jsonschema.For[controlRequest](&jsonschema.ForOptions{})
	if err != nil {
		return nil, err
	}
	for _, a := range controlActions {
		control.Properties["action"].Enum = append(control.Properties["action"].Enum, a)
	}

	sc, err := jsonschema.For[sceneRequest](&jsonschema.ForOptions{})
	if err != nil {
		return nil, err
	}
	return map[string]*jsonschema.Schema{
		"edit":    edit,
		"control": control,
		"scene":   sc,
	}, nil
}

// publishControl is the part of the publish loop the panel drives.
type publishControl interface {
	Stats() rig.Stats
	SetPublishing(on bool)
}

// WebConfig configures a WebServer.
type WebConfig struct {
	Controller *rig.Controller
	Loop       publishControl
	Poses      *pose.Store
	Scenes     *scene.Store

	// Interp is the transition time used when a request omits interp_s.
	Interp time.Duration

	// Title is shown in the page header.
	Title string

	Logger *slog.Logger
}

// WebServer serves the control panel.
type WebServer struct {
	cfg      WebConfig
	model    *joint.Model
	schemas  map[string]*jsonschema.Resolved
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebServer creates a web server for the controller in cfg.
func NewWebServer(cfg WebConfig) (*WebServer, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ws := &WebServer{
		cfg:     cfg,
		model:   cfg.Controller.Model(),
		schemas: make(map[string]*jsonschema.Resolved),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: cfg.Logger.With("component", "web"),
	}
	schemas, err := requestSchemas(ws.model)
	if err != nil {
		return nil, fmt.Errorf("request schemas: %w", err)
	}
	for name, s := range schemas {
		rs, err := s.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("resolve %s schema: %w", name, err)
		}
		ws.schemas[name] = rs
	}
	return ws, nil
}

// Handler returns the panel routes. Websocket sessions end when ctx is done.
func (ws *WebServer) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", ws.handleIndex)
	mux.HandleFunc("GET /api/model", ws.handleModel)
	mux.HandleFunc("GET /api/state", ws.handleState)
	mux.HandleFunc("POST /api/edit", ws.handleEdit)
	mux.HandleFunc("POST /api/control", ws.handleControl)
	mux.HandleFunc("GET /api/poses", ws.handlePoses)
	mux.HandleFunc("GET /api/scenes", ws.handleScenes)
	mux.HandleFunc("PUT /api/scenes/{name}", ws.handlePutScene)
	mux.HandleFunc("DELETE /api/scenes/{name}", ws.handleDeleteScene)
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		ws.handleWebSocket(ctx, w, r)
	})
	return mux
}

// ListenAndServe serves the panel on addr until ctx is done.
func (ws *WebServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           ws.Handler(ctx),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		ws.logger.Info("web control panel starting", "addr", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type indexData struct {
	Title  string
	Joints []joint.Joint
}

func (ws *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	title := ws.cfg.Title
	if title == "" {
		title = "twistctl"
	}
	data := indexData{Title: title, Joints: ws.model.Joints()}
	if err := tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (ws *WebServer) handleModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ws.model.Joints())
}

// stateResponse is the JSON body of /api/state and of websocket pushes.
type stateResponse struct {
	rig.Status
	Publish *rig.Stats `json:"publish,omitempty"`
	Poses   []string   `json:"poses"`
	Scenes  []string   `json:"scenes"`
}

func (ws *WebServer) state() stateResponse {
	st := stateResponse{
		Status: ws.cfg.Controller.Snapshot(),
		Poses:  ws.cfg.Poses.List(),
		Scenes: ws.cfg.Scenes.List(),
	}
	if ws.cfg.Loop != nil {
		stats := ws.cfg.Loop.Stats()
		st.Publish = &stats
	}
	return st
}

func (ws *WebServer) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ws.state())
}

func (ws *WebServer) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := ws.decode(r.Body, "edit", &req); err != nil {
		ws.writeError(w, err)
		return
	}
	if err := ws.edit(req); err != nil {
		ws.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.cfg.Controller.Snapshot())
}

func (ws *WebServer) edit(req editRequest) error {
	mirror := ws.cfg.Controller.Symmetric()
	if req.Mirror != nil {
		mirror = *req.Mirror
	}
	return ws.cfg.Controller.Edit(req.Joint, req.Value, mirror)
}

func (ws *WebServer) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := ws.decode(r.Body, "control", &req); err != nil {
		ws.writeError(w, err)
		return
	}
	msg, err := ws.control(r.Context(), req)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.logger.Debug("control", "action", req.Action, "name", req.Name)
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (ws *WebServer) control(ctx context.Context, req controlRequest) (string, error) {
	c := ws.cfg.Controller
	interp := ws.cfg.Interp
	if req.Interp != nil {
		d, err := scene.Seconds(*req.Interp)
		if err != nil {
			return "", err
		}
		interp = d
	}
	needName := func() error {
		if strings.TrimSpace(req.Name) == "" {
			return fmt.Errorf("%w: %s needs a name", errBadRequest, req.Action)
		}
		return nil
	}
	needValue := func() error {
		if req.Value == nil {
			return fmt.Errorf("%w: %s needs a value", errBadRequest, req.Action)
		}
		return nil
	}

	switch req.Action {
	case "save_pose":
		if err := needName(); err != nil {
			return "", err
		}
		p, err := c.SavePose(ctx, req.Name)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Pose %q saved", p.Name), nil

	case "load_pose":
		if err := needName(); err != nil {
			return "", err
		}
		if err := c.LoadPose(req.Name, interp); err != nil {
			return "", err
		}
		return fmt.Sprintf("Loading pose %q", req.Name), nil

	case "delete_pose":
		if err := needName(); err != nil {
			return "", err
		}
		if err := ws.cfg.Poses.Delete(ctx, req.Name); err != nil {
			return "", err
		}
		return fmt.Sprintf("Pose %q deleted", req.Name), nil

	case "play":
		if err := needName(); err != nil {
			return "", err
		}
		if err := c.Play(req.Name); err != nil {
			return "", err
		}
		return fmt.Sprintf("Playing scene %q", req.Name), nil

	case "stop":
		c.Stop()
		return "Playback stopped", nil

	case "loop":
		if err := needValue(); err != nil {
			return "", err
		}
		c.SetLoop(*req.Value)
		return fmt.Sprintf("Loop %s", onOff(*req.Value)), nil

	case "symmetric":
		if err := needValue(); err != nil {
			return "", err
		}
		c.SetSymmetric(*req.Value)
		return fmt.Sprintf("Symmetric mode %s", onOff(*req.Value)), nil

	case "publishing":
		if err := needValue(); err != nil {
			return "", err
		}
		if ws.cfg.Loop == nil {
			return "", fmt.Errorf("%w: no publish loop", errBadRequest)
		}
		ws.cfg.Loop.SetPublishing(*req.Value)
		return fmt.Sprintf("Publishing %s", onOff(*req.Value)), nil

	case "policy":
		p, err := rig.ParsePolicy(req.Name)
		if err != nil {
			return "", fmt.Errorf("%w: %v", errBadRequest, err)
		}
		c.SetPolicy(p)
		return fmt.Sprintf("Edit policy set to %s", p), nil

	case "reset":
		if err := c.Reset(interp); err != nil {
			return "", err
		}
		return "Moving to default pose", nil

	case "zero":
		if err := c.Zero(interp); err != nil {
			return "", err
		}
		return "Moving to zero pose", nil
	}
	return "", fmt.Errorf("%w: unknown action %q", errBadRequest, req.Action)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (ws *WebServer) handlePoses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ws.cfg.Poses.Poses())
}

func (ws *WebServer) handleScenes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ws.cfg.Scenes.Scenes())
}

func (ws *WebServer) handlePutScene(w http.ResponseWriter, r *http.Request) {
	var req sceneRequest
	if err := ws.decode(r.Body, "scene", &req); err != nil {
		ws.writeError(w, err)
		return
	}
	sc := scene.Scene{Name: r.PathValue("name"), Loop: req.Loop}
	for _, s := range req.Steps {
		step, err := s.step()
		if err != nil {
			ws.writeError(w, err)
			return
		}
		sc.Steps = append(sc.Steps, step)
	}
	saved, err := ws.cfg.Scenes.Save(r.Context(), sc)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s stepRequest) step() (scene.Step, error) {
	hold, err := scene.Seconds(s.Hold)
	if err != nil {
		return scene.Step{}, err
	}
	interp := scene.DefaultInterp
	if s.Interp != nil {
		if interp, err = scene.Seconds(*s.Interp); err != nil {
			return scene.Step{}, err
		}
	}
	return scene.Step{Pose: s.Pose, Hold: hold, Interp: interp}, nil
}

func (ws *WebServer) handleDeleteScene(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := ws.cfg.Scenes.Delete(r.Context(), name); err != nil {
		ws.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Scene %q deleted", name)})
}

// handleWebSocket pushes the state to the panel and accepts edit messages
// for low-latency slider drags.
func (ws *WebServer) handleWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	session := uuid.NewString()
	logger := ws.logger.With("session", session)
	logger.Info("panel connected", "remote", r.RemoteAddr)
	defer logger.Info("panel disconnected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer cancel()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("websocket read error", "error", err)
				}
				return
			}
			var req editRequest
			if err := ws.decode(bytes.NewReader(msg), "edit", &req); err != nil {
				logger.Debug("ignored websocket message", "error", err)
				continue
			}
			if err := ws.edit(req); err != nil {
				logger.Debug("websocket edit failed", "error", err)
			}
		}
	}()

	ticker := time.NewTicker(time.Second / statePushRate)
	defer ticker.Stop()
	for {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			return
		}
		if err := conn.WriteJSON(ws.state()); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(wsWriteWait))
			return
		case <-ticker.C:
		}
	}
}

// decode validates the JSON body against the named schema, then decodes it
// into dst.
func (ws *WebServer) decode(r io.Reader, schema string, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r, maxRequestBody))
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	var instance any
	if err := json.Unmarshal(body, &instance); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	if err := ws.schemas[schema].Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

var (
	badRequestErrors = []error{
		errBadRequest,
		pose.ErrInvalidName, pose.ErrMalformedRecord,
		scene.ErrInvalidName, scene.ErrMalformedRecord, scene.ErrStepIndex, scene.ErrInvalidDuration,
		rig.ErrInvalidJoint,
	}
	notFoundErrors = []error{pose.ErrNotFound, scene.ErrNotFound}
	conflictErrors = []error{scene.ErrEmptyScene, scene.ErrUnresolvedPose, rig.ErrPlaybackActive}
)

// httpStatus maps domain errors to response codes.
func httpStatus(err error) int {
	is := func(target error) bool { return errors.Is(err, target) }
	switch {
	case slices.ContainsFunc(badRequestErrors, is):
		return http.StatusBadRequest
	case slices.ContainsFunc(notFoundErrors, is):
		return http.StatusNotFound
	case slices.ContainsFunc(conflictErrors, is):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (ws *WebServer) writeError(w http.ResponseWriter, err error) {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		ws.logger.Error("request failed", "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
