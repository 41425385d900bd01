package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/joint"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/kv"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/pose"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/rig"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/scene"
)

type fakeLoop struct {
	mu         sync.Mutex
	publishing bool
}

func (f *fakeLoop) Stats() rig.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return rig.Stats{Publishing: f.publishing, Key: "test"}
}

func (f *fakeLoop) SetPublishing(on bool) {
	f.mu.Lock()
	f.publishing = on
	f.mu.Unlock()
}

type webFixture struct {
	t    *testing.T
	lib  *library
	ctrl *rig.Controller
	loop *fakeLoop
	srv  *httptest.Server
}

func newWebFixture(t *testing.T) *webFixture {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	lib, err := newLibrary(context.Background(), joint.G1(), kv.NewMemory())
	if err != nil {
		t.Fatal(err)
	}
	f := &webFixture{t: t, lib: lib, loop: &fakeLoop{publishing: true}}
	f.ctrl = rig.NewController(lib.model, rig.ControllerOptions{
		Poses:  lib.poses,
		Scenes: lib.scenes,
		Logger: quiet,
	})
	ws, err := NewWebServer(WebConfig{
		Controller: f.ctrl,
		Loop:       f.loop,
		Poses:      lib.poses,
		Scenes:     lib.scenes,
		Interp:     0,
		Logger:     quiet,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.srv = httptest.NewServer(ws.Handler(ctx))
	t.Cleanup(func() {
		cancel()
		f.srv.Close()
	})
	return f
}

func (f *webFixture) index(name string) int {
	f.t.Helper()
	i, ok := f.lib.model.Index(name)
	if !ok {
		f.t.Fatalf("unknown joint %q", name)
	}
	return i
}

// do sends body as JSON and decodes the response into out when non-nil.
func (f *webFixture) do(method, path string, body any, out any) int {
	f.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			f.t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, r)
	if err != nil {
		f.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		f.t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			f.t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (f *webFixture) control(body map[string]any) int {
	f.t.Helper()
	return f.do(http.MethodPost, "/api/control", body, nil)
}

func TestWebIndex(t *testing.T) {
	f := newWebFixture(t)
	resp, err := f.srv.Client().Get(f.srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{"left_hip_pitch", "right_wrist_yaw", `id="j28"`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("index page missing %q", want)
		}
	}
}

func TestWebModel(t *testing.T) {
	f := newWebFixture(t)
	var joints []struct {
		Name  string  `json:"name"`
		Lower float64 `json:"lower"`
		Upper float64 `json:"upper"`
	}
	if code := f.do(http.MethodGet, "/api/model", nil, &joints); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(joints) != joint.G1DOF {
		t.Fatalf("got %d joints", len(joints))
	}
	if joints[18].Name != "left_elbow" || joints[18].Upper != 2.0944 {
		t.Errorf("joint 18 = %+v", joints[18])
	}
}

func TestWebEdit(t *testing.T) {
	f := newWebFixture(t)
	lr, rr := f.index("left_hip_roll"), f.index("right_hip_roll")
	le, re := f.index("left_elbow"), f.index("right_elbow")

	if code := f.do(http.MethodPost, "/api/edit", map[string]any{"joint": lr, "value": 0.3, "mirror": true}, nil); code != http.StatusOK {
		t.Fatalf("mirrored edit status = %d", code)
	}
	got := f.ctrl.Target()
	if got[lr] != 0.3 || got[rr] != -0.3 {
		t.Errorf("hip roll = %v / %v, want 0.3 / -0.3", got[lr], got[rr])
	}

	before := f.ctrl.Target()[re]
	if code := f.do(http.MethodPost, "/api/edit", map[string]any{"joint": le, "value": 9}, nil); code != http.StatusOK {
		t.Fatalf("edit status = %d", code)
	}
	got = f.ctrl.Target()
	if got[le] != 2.0944 {
		t.Errorf("left_elbow = %v, want clamped 2.0944", got[le])
	}
	if got[re] != before {
		t.Errorf("right_elbow changed without mirroring: %v", got[re])
	}

	// symmetric mode is the default for mirror
	if code := f.control(map[string]any{"action": "symmetric", "value": true}); code != http.StatusOK {
		t.Fatalf("symmetric status = %d", code)
	}
	f.do(http.MethodPost, "/api/edit", map[string]any{"joint": le, "value": 1.0}, nil)
	if got := f.ctrl.Target()[re]; got != 1.0 {
		t.Errorf("right_elbow = %v, want 1.0 in symmetric mode", got)
	}
}

func TestWebRejectsInvalidRequests(t *testing.T) {
	f := newWebFixture(t)
	tests := []struct {
		name string
		path string
		body any
	}{
		{"joint out of range", "/api/edit", map[string]any{"joint": 29, "value": 0}},
		{"negative joint", "/api/edit", map[string]any{"joint": -1, "value": 0}},
		{"missing value", "/api/edit", map[string]any{"joint": 0}},
		{"unknown field", "/api/edit", map[string]any{"joint": 0, "value": 0, "speed": 1}},
		{"not json", "/api/edit", "{"},
		{"unknown action", "/api/control", map[string]any{"action": "dance"}},
		{"missing name", "/api/control", map[string]any{"action": "save_pose"}},
		{"blank name", "/api/control", map[string]any{"action": "load_pose", "name": "  "}},
		{"loop without value", "/api/control", map[string]any{"action": "loop"}},
		{"bad policy", "/api/control", map[string]any{"action": "policy", "name": "ignore"}},
		{"negative interp", "/api/control", map[string]any{"action": "reset", "interp_s": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp map[string]string
			if code := f.do(http.MethodPost, tt.path, tt.body, &resp); code != http.StatusBadRequest {
				t.Fatalf("status = %d (%v), want 400", code, resp)
			}
			if resp["error"] == "" {
				t.Error("missing error message")
			}
		})
	}
}

func TestWebPoses(t *testing.T) {
	f := newWebFixture(t)
	ls := f.index("left_shoulder_pitch")
	f.do(http.MethodPost, "/api/edit", map[string]any{"joint": ls, "value": -1.0}, nil)

	if code := f.control(map[string]any{"action": "save_pose", "name": "reach"}); code != http.StatusOK {
		t.Fatalf("save_pose status = %d", code)
	}
	if code := f.control(map[string]any{"action": "reset", "interp_s": 0}); code != http.StatusOK {
		t.Fatalf("reset status = %d", code)
	}
	if diff := cmp.Diff(f.lib.model.Default(), f.ctrl.Target()); diff != "" {
		t.Errorf("reset target (-want +got):\n%s", diff)
	}
	if code := f.control(map[string]any{"action": "load_pose", "name": "reach"}); code != http.StatusOK {
		t.Fatalf("load_pose status = %d", code)
	}
	if got := f.ctrl.Target()[ls]; got != -1.0 {
		t.Errorf("left_shoulder_pitch = %v after load", got)
	}

	var poses []pose.Pose
	f.do(http.MethodGet, "/api/poses", nil, &poses)
	if len(poses) != 1 || poses[0].Name != "reach" {
		t.Fatalf("poses = %+v", poses)
	}

	if code := f.control(map[string]any{"action": "load_pose", "name": "missing"}); code != http.StatusNotFound {
		t.Errorf("load missing status = %d, want 404", code)
	}
	if code := f.control(map[string]any{"action": "delete_pose", "name": "reach"}); code != http.StatusOK {
		t.Errorf("delete status = %d", code)
	}
	if code := f.control(map[string]any{"action": "delete_pose", "name": "reach"}); code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", code)
	}
}

func TestWebScenes(t *testing.T) {
	f := newWebFixture(t)
	f.control(map[string]any{"action": "save_pose", "name": "stand"})

	var saved scene.Scene
	code := f.do(http.MethodPut, "/api/scenes/wave", map[string]any{
		"loop": true,
		"steps": []map[string]any{
			{"pose": "stand", "hold_s": 0.5},
			{"pose": "stand", "hold_s": 0, "interp_s": 2},
		},
	}, &saved)
	if code != http.StatusOK {
		t.Fatalf("put status = %d", code)
	}
	want := []scene.Step{
		{Pose: "stand", Hold: 500 * time.Millisecond, Interp: scene.DefaultInterp},
		{Pose: "stand", Interp: 2 * time.Second},
	}
	if diff := cmp.Diff(want, saved.Steps); diff != "" {
		t.Errorf("steps (-want +got):\n%s", diff)
	}
	if !saved.Loop || saved.Name != "wave" {
		t.Errorf("scene = %+v", saved)
	}

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"negative hold", map[string]any{"steps": []map[string]any{{"pose": "stand", "hold_s": -1}}}, http.StatusBadRequest},
		{"blank pose", map[string]any{"steps": []map[string]any{{"pose": ""}}}, http.StatusBadRequest},
		{"missing steps", map[string]any{"loop": true}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := f.do(http.MethodPut, "/api/scenes/bad", tt.body, nil); code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
		})
	}

	var scenes []scene.Scene
	f.do(http.MethodGet, "/api/scenes", nil, &scenes)
	if len(scenes) != 1 {
		t.Fatalf("scenes = %+v", scenes)
	}

	if code := f.do(http.MethodDelete, "/api/scenes/wave", nil, nil); code != http.StatusOK {
		t.Errorf("delete status = %d", code)
	}
	if code := f.do(http.MethodDelete, "/api/scenes/wave", nil, nil); code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", code)
	}
}

func TestWebPlayback(t *testing.T) {
	f := newWebFixture(t)
	f.control(map[string]any{"action": "save_pose", "name": "stand"})
	f.do(http.MethodPut, "/api/scenes/empty", map[string]any{"steps": []any{}}, nil)
	f.do(http.MethodPut, "/api/scenes/ghost", map[string]any{"steps": []map[string]any{{"pose": "nowhere"}}}, nil)
	f.do(http.MethodPut, "/api/scenes/hold", map[string]any{"steps": []map[string]any{{"pose": "stand", "hold_s": 60}}}, nil)

	tests := []struct {
		name string
		want int
	}{
		{"empty", http.StatusConflict},
		{"ghost", http.StatusConflict},
		{"missing", http.StatusNotFound},
		{"hold", http.StatusOK},
	}
	for _, tt := range tests {
		if code := f.control(map[string]any{"action": "play", "name": tt.name}); code != tt.want {
			t.Errorf("play %s status = %d, want %d", tt.name, code, tt.want)
		}
	}

	f.control(map[string]any{"action": "policy", "name": "reject"})
	var resp map[string]string
	code := f.do(http.MethodPost, "/api/edit", map[string]any{"joint": 0, "value": 0.1}, &resp)
	if code != http.StatusConflict {
		t.Fatalf("edit during playback status = %d (%v), want 409", code, resp)
	}

	var st struct {
		Playback scene.State `json:"playback"`
		Policy   string      `json:"policy"`
	}
	f.do(http.MethodGet, "/api/state", nil, &st)
	if st.Playback.Scene != "hold" || st.Policy != "reject" {
		t.Errorf("state = %+v", st)
	}

	f.control(map[string]any{"action": "stop"})
	if code := f.do(http.MethodPost, "/api/edit", map[string]any{"joint": 0, "value": 0.1}, nil); code != http.StatusOK {
		t.Errorf("edit after stop status = %d", code)
	}
}

func TestWebPublishing(t *testing.T) {
	f := newWebFixture(t)
	if code := f.control(map[string]any{"action": "publishing", "value": false}); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var st struct {
		Publish *rig.Stats `json:"publish"`
		Poses   []string   `json:"poses"`
	}
	f.do(http.MethodGet, "/api/state", nil, &st)
	if st.Publish == nil || st.Publish.Publishing {
		t.Errorf("publish = %+v, want publishing off", st.Publish)
	}
}

func TestWebSocket(t *testing.T) {
	f := newWebFixture(t)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	var st struct {
		Target joint.Vector `json:"target"`
	}
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatal(err)
	}
	if len(st.Target) != joint.G1DOF {
		t.Fatalf("pushed target has %d joints", len(st.Target))
	}

	knee := f.index("left_knee")
	if err := conn.WriteJSON(map[string]any{"joint": knee, "value": 1.5}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := conn.ReadJSON(&st); err != nil {
			t.Fatal(err)
		}
		if st.Target[knee] == 1.5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("left_knee = %v, edit never arrived", st.Target[knee])
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", pose.ErrInvalidName), http.StatusBadRequest},
		{scene.ErrStepIndex, http.StatusBadRequest},
		{rig.ErrInvalidJoint, http.StatusBadRequest},
		{pose.ErrNotFound, http.StatusNotFound},
		{scene.ErrNotFound, http.StatusNotFound},
		{scene.ErrEmptyScene, http.StatusConflict},
		{rig.ErrPlaybackActive, http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := httpStatus(tt.err); got != tt.want {
			t.Errorf("httpStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRequestSchemas(t *testing.T) {
	schemas, err := requestSchemas(joint.G1())
	if err != nil {
		t.Fatal(err)
	}
	if got := *schemas["edit"].Properties["joint"].Maximum; got != 28 {
		t.Errorf("joint maximum = %v, want 28", got)
	}
	if got := len(schemas["control"].Properties["action"].Enum); got != len(controlActions) {
		t.Errorf("action enum has %d values, want %d", got, len(controlActions))
	}
}
