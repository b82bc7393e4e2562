package api_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/ilyshalit/mebel1/internal/api"
	"github.com/ilyshalit/mebel1/internal/catalog"
	"github.com/ilyshalit/mebel1/internal/compose"
	"github.com/ilyshalit/mebel1/internal/files"
	"github.com/ilyshalit/mebel1/internal/server"
	"github.com/ilyshalit/mebel1/internal/upsell"
	"github.com/ilyshalit/mebel1/internal/vision"
)

type fakeAnalyzer struct {
	analysis vision.Analysis
	items    []vision.ReplaceableItem
	err      error
	calls    int
}

func (f *fakeAnalyzer) AnalyzePlacement(_ context.Context, _ vision.ImageInput, _ []vision.ImageInput) (vision.Analysis, error) {
	f.calls++
	return f.analysis, f.err
}

func (f *fakeAnalyzer) DetectReplaceable(_ context.Context, _ vision.ImageInput) ([]vision.ReplaceableItem, error) {
	f.calls++
	return f.items, f.err
}

type fakeComposer struct {
	result  compose.Result
	err     error
	calls   int
	lastReq compose.Request
}

func (f *fakeComposer) Compose(_ context.Context, req compose.Request) (compose.Result, error) {
	f.calls++
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeComposer) ModelName() string { return "fake-composer" }

type fakeRemover struct {
	enabled bool
	out     []byte
	err     error
}

func (f *fakeRemover) Enabled() bool { return f.enabled }

func (f *fakeRemover) Remove(_ context.Context, data []byte, _ string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return data, nil
}

type env struct {
	handler  api.Handler
	router   http.Handler
	store    *files.Store
	catalog  *catalog.Store
	analyzer *fakeAnalyzer
	composer *fakeComposer
	remover  *fakeRemover
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := files.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	catalogStore, err := catalog.NewStore(catalog.DefaultPath(store.BaseDir))
	if err != nil {
		t.Fatal(err)
	}

	e := &env{
		store:    store,
		catalog:  catalogStore,
		analyzer: &fakeAnalyzer{analysis: vision.DefaultAnalysis()},
		composer: &fakeComposer{result: compose.Result{Data: testPNG(t, 4, 4), MimeType: "image/png"}},
		remover:  &fakeRemover{},
	}
	e.handler = api.Handler{
		Files:    store,
		Catalog:  catalogStore,
		Analyzer: e.analyzer,
		Composer: e.composer,
		Remover:  e.remover,
		Upsell:   upsell.NewRecommender(nil),
	}
	e.router = server.New("0", e.handler, store, "").Handler
	return e
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// testWebP builds a lossless WebP header carrying the given dimensions.
func testWebP(w, h int) []byte {
	dims := uint32(w-1) | uint32(h-1)<<14
	payload := []byte{0x2f, byte(dims), byte(dims >> 8), byte(dims >> 16), byte(dims >> 24)}
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(4+8+len(payload)+1))
	buf.WriteString("WEBPVP8L")
	binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(payload)
	buf.WriteByte(0)
	return buf.Bytes()
}

func multipartBody(t *testing.T, fields map[string]string, fileField string, filenames ...string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range filenames {
		part, err := writer.CreateFormFile(fileField, name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(testPNG(t, 8, 8)); err != nil {
			t.Fatal(err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	return body, writer.FormDataContentType()
}

func (e *env) do(t *testing.T, method, target string, body io.Reader, contentType string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("response %q is not JSON: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func (e *env) uploadRoom(t *testing.T) string {
	t.Helper()
	body, ct := multipartBody(t, nil, "file", "room.png")
	rec, resp := e.do(t, http.MethodPost, "/api/upload/room", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload room status = %d: %v", rec.Code, resp)
	}
	return resp["file_path"].(string)
}

func (e *env) uploadFurniture(t *testing.T, count int) []string {
	t.Helper()
	names := make([]string, count)
	for i := range names {
		names[i] = "sofa.png"
	}
	body, ct := multipartBody(t, nil, "files", names...)
	rec, resp := e.do(t, http.MethodPost, "/api/upload/furniture", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload furniture status = %d: %v", rec.Code, resp)
	}
	var paths []string
	for _, raw := range resp["items"].([]any) {
		paths = append(paths, raw.(map[string]any)["file_path"].(string))
	}
	return paths
}

func generateForm(roomPath string, furniturePaths []string, extra map[string]string) (io.Reader, string) {
	values := url.Values{}
	values.Set("room_image_path", roomPath)
	encoded, _ := json.Marshal(furniturePaths)
	values.Set("furniture_image_paths", string(encoded))
	for key, value := range extra {
		values.Set(key, value)
	}
	return strings.NewReader(values.Encode()), "application/x-www-form-urlencoded"
}

func TestUploadRoomReturnsReadableFile(t *testing.T) {
	e := newEnv(t)
	path := e.uploadRoom(t)
	if _, err := os.Stat(path); err != nil {
		t.Errorf("uploaded file should exist: %v", err)
	}
}

func TestUploadRoomRequiresFile(t *testing.T) {
	e := newEnv(t)
	body, ct := multipartBody(t, map[string]string{"other": "x"}, "unused")
	rec, resp := e.do(t, http.MethodPost, "/api/upload/room", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp["detail"] != "file is required" {
		t.Errorf("detail = %v", resp["detail"])
	}
}

func TestUploadFurnitureLimitsBatchSize(t *testing.T) {
	e := newEnv(t)
	body, ct := multipartBody(t, nil, "files", "a.png", "b.png", "c.png", "d.png", "e.png", "f.png")
	rec, resp := e.do(t, http.MethodPost, "/api/upload/furniture", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %v", rec.Code, resp)
	}
}

func TestUploadFurnitureSingleFileShape(t *testing.T) {
	e := newEnv(t)
	e.remover.enabled = true
	e.remover.out = testPNG(t, 2, 2)

	body, ct := multipartBody(t, nil, "file", "sofa.png")
	rec, resp := e.do(t, http.MethodPost, "/api/upload/furniture", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, resp)
	}
	if _, ok := resp["file_path"]; !ok {
		t.Error("single upload must return file_path")
	}
	if resp["background_removed"] != true {
		t.Error("background_removed should be true when the remover succeeds")
	}
}

func TestUploadFurnitureRemoverFailureFallsThrough(t *testing.T) {
	e := newEnv(t)
	e.remover.enabled = true
	e.remover.err = errors.New("removebg quota")

	body, ct := multipartBody(t, nil, "file", "sofa.png")
	rec, resp := e.do(t, http.MethodPost, "/api/upload/furniture", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, resp)
	}
	if resp["background_removed"] != false {
		t.Error("background_removed should be false when removal fails")
	}
}

func TestGenerateReplaceModeRequiresExactlyOneItem(t *testing.T) {
	e := newEnv(t)
	room := e.uploadRoom(t)
	furniture := e.uploadFurniture(t, 2)

	body, ct := generateForm(room, furniture, map[string]string{"placement_mode": "replace"})
	rec, resp := e.do(t, http.MethodPost, "/api/generate", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %v", rec.Code, resp)
	}
	if resp["detail"] != "exactly one item required" {
		t.Errorf("detail = %v", resp["detail"])
	}
	if e.analyzer.calls != 0 || e.composer.calls != 0 {
		t.Error("validation failure must not reach external clients")
	}
}

func TestGenerateManualModeRequiresBox(t *testing.T) {
	e := newEnv(t)
	room := e.uploadRoom(t)
	furniture := e.uploadFurniture(t, 1)

	body, ct := generateForm(room, furniture, map[string]string{"mode": "manual"})
	rec, resp := e.do(t, http.MethodPost, "/api/generate", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %v", rec.Code, resp)
	}
	if e.analyzer.calls != 0 || e.composer.calls != 0 {
		t.Error("validation failure must not reach external clients")
	}
}

func TestGenerateRejectsBadRotation(t *testing.T) {
	e := newEnv(t)
	room := e.uploadRoom(t)
	furniture := e.uploadFurniture(t, 1)

	body, ct := generateForm(room, furniture, map[string]string{"furniture_rotation": "45"})
	rec, _ := e.do(t, http.MethodPost, "/api/generate", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if e.composer.calls != 0 {
		t.Error("validation failure must not reach the composer")
	}
}

func TestGenerateRejectsNegativeManualBox(t *testing.T) {
	e := newEnv(t)
	room := e.uploadRoom(t)
	furniture := e.uploadFurniture(t, 1)

	body, ct := generateForm(room, furniture, map[string]string{
		"mode":         "manual",
		"manual_box_x": "-5",
		"manual_box_y": "0",
		"manual_box_w": "10",
		"manual_box_h": "10",
	})
	rec, _ := e.do(t, http.MethodPost, "/api/generate", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGenerateSuccess(t *testing.T) {
	e := newEnv(t)
	room := e.uploadRoom(t)
	furniture := e.uploadFurniture(t, 1)

	body, ct := generateForm(room, furniture, nil)
	rec, resp := e.do(t, http.MethodPost, "/api/generate", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, resp)
	}
	if resp["success"] != true {
		t.Error("success should be true")
	}
	if !strings.HasPrefix(resp["result_image_url"].(string), "/results/") {
		t.Errorf("result_image_url = %v", resp["result_image_url"])
	}
	if resp["model_used"] != "fake-composer" {
		t.Errorf("model_used = %v", resp["model_used"])
	}
	if resp["furniture_count"] != float64(1) {
		t.Errorf("furniture_count = %v", resp["furniture_count"])
	}
	if _, err := os.Stat(resp["result_image_path"].(string)); err != nil {
		t.Errorf("result file should exist: %v", err)
	}
	if e.composer.calls != 1 || e.analyzer.calls != 1 {
		t.Errorf("composer calls = %d, analyzer calls = %d", e.composer.calls, e.analyzer.calls)
	}
}

func TestGenerateManualBoxOverridesPlacement(t *testing.T) {
	e := newEnv(t)

	// 100x50 room, so box (10,10,20,10) centers at (20%, 30%)
	roomPath, err := e.store.SaveUpload(testPNG(t, 100, 50), "room.png")
	if err != nil {
		t.Fatal(err)
	}
	furniture := e.uploadFurniture(t, 1)

	body, ct := generateForm(roomPath, furniture, map[string]string{
		"mode":           "manual",
		"manual_box_x":   "10",
		"manual_box_y":   "10",
		"manual_box_w":   "20",
		"manual_box_h":   "10",
		"wall_alignment": "auto",
	})
	rec, resp := e.do(t, http.MethodPost, "/api/generate", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, resp)
	}

	placement := e.composer.lastReq.Analysis.Placement
	if placement.XPercent != 20 || placement.YPercent != 30 {
		t.Errorf("placement center = (%v, %v), want (20, 30)", placement.XPercent, placement.YPercent)
	}
	if placement.WidthPercent != 20 || placement.HeightPercent != 20 {
		t.Errorf("placement size = (%v, %v), want (20, 20)", placement.WidthPercent, placement.HeightPercent)
	}
	// center at 20% from the left resolves the auto alignment to the left wall
	if placement.WallAlignment != "left" {
		t.Errorf("wall alignment = %q, want left", placement.WallAlignment)
	}
}

func TestGenerateManualBoxWebpRoom(t *testing.T) {
	e := newEnv(t)

	// 100x50 room, so box (10,10,20,10) centers at (20%, 30%)
	roomPath, err := e.store.SaveUpload(testWebP(100, 50), "room.webp")
	if err != nil {
		t.Fatal(err)
	}
	furniture := e.uploadFurniture(t, 1)

	body, ct := generateForm(roomPath, furniture, map[string]string{
		"mode":         "manual",
		"manual_box_x": "10",
		"manual_box_y": "10",
		"manual_box_w": "20",
		"manual_box_h": "10",
	})
	rec, resp := e.do(t, http.MethodPost, "/api/generate", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, resp)
	}

	placement := e.composer.lastReq.Analysis.Placement
	if placement.XPercent != 20 || placement.YPercent != 30 {
		t.Errorf("placement center = (%v, %v), want (20, 30)", placement.XPercent, placement.YPercent)
	}
	if placement.WidthPercent != 20 || placement.HeightPercent != 20 {
		t.Errorf("placement size = (%v, %v), want (20, 20)", placement.WidthPercent, placement.HeightPercent)
	}
}

func TestGenerateManualBoxUnreadableRoom(t *testing.T) {
	e := newEnv(t)

	// valid RIFF/WEBP signature, truncated image data
	roomPath, err := e.store.SaveUpload([]byte("RIFF\x10\x00\x00\x00WEBPVP8 garbage"), "room.webp")
	if err != nil {
		t.Fatal(err)
	}
	furniture := e.uploadFurniture(t, 1)

	body, ct := generateForm(roomPath, furniture, map[string]string{
		"mode":         "manual",
		"manual_box_x": "10",
		"manual_box_y": "10",
		"manual_box_w": "20",
		"manual_box_h": "10",
	})
	rec, resp := e.do(t, http.MethodPost, "/api/generate", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %v", rec.Code, resp)
	}
	if resp["detail"] != "could not read room image dimensions" {
		t.Errorf("detail = %v", resp["detail"])
	}
	if e.analyzer.calls != 0 || e.composer.calls != 0 {
		t.Errorf("providers called (%d analyzer, %d composer), want none", e.analyzer.calls, e.composer.calls)
	}
}

func TestGenerateUpstreamFailure(t *testing.T) {
	e := newEnv(t)
	e.composer.err = errors.New("provider exploded: secret token abc")
	room := e.uploadRoom(t)
	furniture := e.uploadFurniture(t, 1)

	body, ct := generateForm(room, furniture, nil)
	rec, resp := e.do(t, http.MethodPost, "/api/generate", body, ct)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d: %v", rec.Code, resp)
	}
	if strings.Contains(resp["detail"].(string), "secret token") {
		t.Error("provider detail must not leak to the client")
	}
}

func TestCatalogLifecycle(t *testing.T) {
	e := newEnv(t)

	body, ct := multipartBody(t, map[string]string{
		"name":      "Oslo sofa",
		"item_type": "sofa",
		"style":     "scandinavian",
		"price":     "499.90",
	}, "file", "sofa.png")
	rec, resp := e.do(t, http.MethodPost, "/api/catalog", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("add status = %d: %v", rec.Code, resp)
	}
	item := resp["item"].(map[string]any)
	id := item["id"].(string)
	if !strings.HasPrefix(item["image_url"].(string), "/catalog/") {
		t.Errorf("image_url = %v", item["image_url"])
	}

	rec, resp = e.do(t, http.MethodGet, "/api/catalog", nil, "")
	if rec.Code != http.StatusOK || len(resp["items"].([]any)) != 1 {
		t.Fatalf("list after add = %v", resp)
	}

	rec, resp = e.do(t, http.MethodGet, "/api/catalog/"+id, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d: %v", rec.Code, resp)
	}
	if got := resp["item"].(map[string]any)["name"]; got != "Oslo sofa" {
		t.Errorf("get item name = %v", got)
	}

	rec, resp = e.do(t, http.MethodGet, "/api/catalog/nope", nil, "")
	if rec.Code != http.StatusNotFound || resp["detail"] != "item not found" {
		t.Fatalf("get unknown = %d: %v", rec.Code, resp)
	}

	rec, resp = e.do(t, http.MethodDelete, "/api/catalog/"+id, nil, "")
	if rec.Code != http.StatusOK || resp["success"] != true {
		t.Fatalf("delete = %d: %v", rec.Code, resp)
	}

	rec, resp = e.do(t, http.MethodGet, "/api/catalog", nil, "")
	if len(resp["items"].([]any)) != 0 {
		t.Fatalf("list after delete = %v", resp)
	}

	rec, resp = e.do(t, http.MethodDelete, "/api/catalog/"+id, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d: %v", rec.Code, resp)
	}
	if resp["detail"] != "item not found" {
		t.Errorf("detail = %v", resp["detail"])
	}
}

func TestCatalogAddValidatesFields(t *testing.T) {
	e := newEnv(t)
	body, ct := multipartBody(t, map[string]string{"item_type": "sofa", "style": "loft"}, "file", "sofa.png")
	rec, resp := e.do(t, http.MethodPost, "/api/catalog", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %v", rec.Code, resp)
	}
	if resp["detail"] != "name is required" {
		t.Errorf("detail = %v", resp["detail"])
	}
}

func TestUpsellEmptyCatalog(t *testing.T) {
	e := newEnv(t)
	values := url.Values{"furniture_analysis": {`{"type":"sofa"}`}}
	rec, resp := e.do(t, http.MethodPost, "/api/upsell",
		strings.NewReader(values.Encode()), "application/x-www-form-urlencoded")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, resp)
	}
	if resp["success"] != true || resp["message"] == nil {
		t.Errorf("empty catalog response = %v", resp)
	}
}

func TestUpsellRecommendsFromCatalog(t *testing.T) {
	e := newEnv(t)
	if _, err := e.catalog.Add(catalog.Item{ID: "1", Name: "Arc Floor Lamp", Type: "lamp"}); err != nil {
		t.Fatal(err)
	}

	values := url.Values{"furniture_analysis": {`{"type":"sofa"}`}}
	rec, resp := e.do(t, http.MethodPost, "/api/upsell",
		strings.NewReader(values.Encode()), "application/x-www-form-urlencoded")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, resp)
	}
	if resp["recommendations"] == nil {
		t.Errorf("expected recommendations, got %v", resp)
	}
}

func TestAnalyzeRoomReplace(t *testing.T) {
	e := newEnv(t)
	e.analyzer.items = []vision.ReplaceableItem{{Type: "sofa", Position: "left"}}
	room := e.uploadRoom(t)

	values := url.Values{"room_image_path": {room}}
	rec, resp := e.do(t, http.MethodPost, "/api/analyze-room-replace",
		strings.NewReader(values.Encode()), "application/x-www-form-urlencoded")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, resp)
	}
	items := resp["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["type"] != "sofa" {
		t.Errorf("items = %v", items)
	}
}

func TestAnalyzeRoomReplaceRequiresPath(t *testing.T) {
	e := newEnv(t)
	rec, resp := e.do(t, http.MethodPost, "/api/analyze-room-replace",
		strings.NewReader(""), "application/x-www-form-urlencoded")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %v", rec.Code, resp)
	}
}

func TestHealthReportsServices(t *testing.T) {
	e := newEnv(t)
	rec, resp := e.do(t, http.MethodGet, "/api/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	services := resp["services"].(map[string]any)
	if services["vision"] != "ready" || services["generation"] != "ready" {
		t.Errorf("services = %v", services)
	}
	if services["background_removal"] != "unavailable" {
		t.Errorf("background_removal = %v", services["background_removal"])
	}
}

func TestRootBanner(t *testing.T) {
	e := newEnv(t)
	rec, resp := e.do(t, http.MethodGet, "/", nil, "")
	if rec.Code != http.StatusOK || resp["status"] != "ok" {
		t.Fatalf("root = %d: %v", rec.Code, resp)
	}
}
