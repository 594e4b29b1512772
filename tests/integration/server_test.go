package integration

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/mikepea/formlink/pkg/formlink/database"
	"github.com/mikepea/formlink/pkg/formlink/models"
	"github.com/mikepea/formlink/pkg/formlink/ratelimit"
	"github.com/mikepea/formlink/pkg/formlink/server"
	"github.com/mikepea/formlink/pkg/formlink/storage"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.Open(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// setupFullServer creates the same engine the server binary runs
func setupFullServer(t *testing.T, db *gorm.DB, limiter *ratelimit.Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	blobs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create blob store: %v", err)
	}
	return server.NewRouter(server.Options{
		DB:      db,
		Blobs:   blobs,
		Limiter: limiter,
	})
}

func doJSON(router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func registerUser(t *testing.T, router *gin.Engine, email string) string {
	resp := doJSON(router, "POST", "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": "password123",
		"name":     "Organizer",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var auth struct {
		Token string `json:"token"`
	}
	json.Unmarshal(resp.Body.Bytes(), &auth)
	return auth.Token
}

func pngBytes(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func submitForm(t *testing.T, router *gin.Engine, path, firstName string, photo []byte) *httptest.ResponseRecorder {
	fields := map[string]string{
		"first_name":        firstName,
		"last_name":         "Lopez",
		"eye_color":         "brown",
		"hair_color":        "black",
		"date_of_birth":     "1990-01-15",
		"height":            "170",
		"weight":            "65",
		"gender":            "female",
		"state":             "CA",
		"city":              "Oakland",
		"zip_code":          "94601",
		"organ_donor":       "false",
		"corrective_lenses": "true",
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		w.WriteField(k, v)
	}
	part, _ := w.CreateFormFile("image", "photo.png")
	part.Write(photo)
	w.Close()

	req, _ := http.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

// TestServerStartup verifies that all routes can be registered without conflicts
func TestServerStartup(t *testing.T) {
	db := setupTestDB(t)

	// This will panic if there are route conflicts
	router := setupFullServer(t, db, nil)

	if router == nil {
		t.Fatal("Expected router to be created")
	}
}

// TestHealthEndpoints verifies the health and metrics endpoints respond
func TestHealthEndpoints(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db, nil)

	for _, path := range []string{"/health", "/api/health", "/metrics"} {
		req, _ := http.NewRequest("GET", path, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, resp.Code)
		}
		if resp.Header().Get("X-Request-Id") == "" {
			t.Errorf("%s: expected a request id header", path)
		}
	}
}

// TestProtectedEndpointsRequireAuth verifies that protected endpoints return 401 without auth
func TestProtectedEndpointsRequireAuth(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db, nil)

	protectedEndpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/api/groups"},
		{"POST", "/api/groups"},
		{"GET", "/api/groups/1/forms"},
		{"POST", "/api/groups/1/links"},
		{"GET", "/api/groups/1/export/spreadsheet"},
		{"GET", "/api/groups/1/export/photos"},
		{"GET", "/api/links"},
		{"POST", "/api/links"},
		{"GET", "/api/forms/abc"},
		{"GET", "/api/admin/stats"},
	}

	for _, endpoint := range protectedEndpoints {
		t.Run(endpoint.method+" "+endpoint.path, func(t *testing.T) {
			req, _ := http.NewRequest(endpoint.method, endpoint.path, nil)
			resp := httptest.NewRecorder()

			router.ServeHTTP(resp, req)

			if resp.Code != http.StatusUnauthorized {
				t.Errorf("Expected status 401 for %s %s, got %d", endpoint.method, endpoint.path, resp.Code)
			}
		})
	}
}

// TestAdminRoutesRequireAdmin verifies regular users are refused admin routes
func TestAdminRoutesRequireAdmin(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db, nil)
	token := registerUser(t, router, "user@example.com")

	resp := doJSON(router, "GET", "/api/admin/orphans", token, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}
}

// TestPublicEndpointsNoAuth verifies that public endpoints don't require auth
func TestPublicEndpointsNoAuth(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db, nil)

	publicEndpoints := []struct {
		method       string
		path         string
		expectedCode int
	}{
		{"GET", "/health", http.StatusOK},
		{"GET", "/api/health", http.StatusOK},
		{"POST", "/api/auth/register", http.StatusBadRequest}, // Bad request (no body), but not 401
		{"POST", "/api/auth/login", http.StatusBadRequest},    // Bad request (no body), but not 401
		{"GET", "/f/nonexistent-token", http.StatusNotFound},  // 404 for missing link, but not 401
	}

	for _, endpoint := range publicEndpoints {
		t.Run(endpoint.method+" "+endpoint.path, func(t *testing.T) {
			req, _ := http.NewRequest(endpoint.method, endpoint.path, nil)
			resp := httptest.NewRecorder()

			router.ServeHTTP(resp, req)

			if resp.Code != endpoint.expectedCode {
				t.Errorf("Expected status %d for %s %s, got %d", endpoint.expectedCode, endpoint.method, endpoint.path, resp.Code)
			}
		})
	}
}

// TestGroupCollectionFlow walks an organizer through a full collection:
// group, link, submissions until full, then both exports.
func TestGroupCollectionFlow(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db, nil)
	token := registerUser(t, router, "organizer@example.com")

	resp := doJSON(router, "POST", "/api/groups", token, map[string]interface{}{
		"name":         "Volunteers",
		"max_capacity": 2,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var group struct {
		ID uint `json:"id"`
	}
	json.Unmarshal(resp.Body.Bytes(), &group)

	resp = doJSON(router, "POST", fmt.Sprintf("/api/groups/%d/links", group.ID), token, nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var link struct {
		Path string `json:"path"`
	}
	json.Unmarshal(resp.Body.Bytes(), &link)

	photo := pngBytes(t)
	for _, name := range []string{"Ana", "Bea"} {
		resp = submitForm(t, router, link.Path, name, photo)
		if resp.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
		}
	}

	// The group is now full
	resp = submitForm(t, router, link.Path, "Cleo", photo)
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for a full group, got %d", resp.Code)
	}
	resp = doJSON(router, "POST", fmt.Sprintf("/api/groups/%d/links", group.ID), token, nil)
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409 issuing a link for a full group, got %d", resp.Code)
	}

	resp = doJSON(router, "GET", fmt.Sprintf("/api/groups/%d/forms", group.ID), token, nil)
	var forms struct {
		Forms []models.Form `json:"forms"`
		Total int64         `json:"total"`
	}
	json.Unmarshal(resp.Body.Bytes(), &forms)
	if forms.Total != 2 {
		t.Fatalf("Expected 2 forms, got %d", forms.Total)
	}

	resp = doJSON(router, "GET", fmt.Sprintf("/api/forms/%s/photo", forms.Forms[0].ID), token, nil)
	if resp.Code != http.StatusOK || resp.Header().Get("Content-Type") != "image/png" {
		t.Errorf("Expected png photo, got %d %s", resp.Code, resp.Header().Get("Content-Type"))
	}

	resp = doJSON(router, "GET", fmt.Sprintf("/api/groups/%d/export/spreadsheet", group.ID), token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	book, err := excelize.OpenReader(bytes.NewReader(resp.Body.Bytes()))
	if err != nil {
		t.Fatalf("Failed to open spreadsheet: %v", err)
	}
	rows, _ := book.GetRows("Submissions")
	if len(rows) != 3 {
		t.Errorf("Expected header plus 2 rows, got %d", len(rows))
	}

	resp = doJSON(router, "GET", fmt.Sprintf("/api/groups/%d/export/photos", group.ID), token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	archive, err := zip.NewReader(bytes.NewReader(resp.Body.Bytes()), int64(resp.Body.Len()))
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	if len(archive.File) != 2 {
		t.Errorf("Expected 2 photos in archive, got %d", len(archive.File))
	}
}

// TestLegacyLinkFlow verifies a single-use link accepts exactly one submission
func TestLegacyLinkFlow(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db, nil)
	token := registerUser(t, router, "organizer@example.com")

	resp := doJSON(router, "POST", "/api/links", token, map[string]int{"hours": 1})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var link struct {
		Token string `json:"token"`
		Path  string `json:"path"`
	}
	json.Unmarshal(resp.Body.Bytes(), &link)

	resp = submitForm(t, router, link.Path, "Ana", pngBytes(t))
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = submitForm(t, router, link.Path, "Ana", pngBytes(t))
	if resp.Code != http.StatusGone {
		t.Errorf("Expected status 410 on reuse, got %d", resp.Code)
	}

	resp = doJSON(router, "GET", "/api/links/"+link.Token, token, nil)
	var status struct {
		Used      bool `json:"used"`
		Submitted bool `json:"submitted"`
	}
	json.Unmarshal(resp.Body.Bytes(), &status)
	if !status.Used || !status.Submitted {
		t.Errorf("Expected link to be used and submitted, got %+v", status)
	}
}

// TestPublicRoutesRateLimited verifies the limiter guards the public form routes only
func TestPublicRoutesRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := ratelimit.New(mr.Addr(), "", "", 2, time.Minute)
	if err != nil {
		t.Fatalf("Failed to create limiter: %v", err)
	}
	defer limiter.Close()

	db := setupTestDB(t)
	router := setupFullServer(t, db, limiter)

	codes := []int{}
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest("GET", "/f/missing", nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	if codes[0] != http.StatusNotFound || codes[1] != http.StatusNotFound || codes[2] != http.StatusTooManyRequests {
		t.Errorf("Unexpected status sequence %v", codes)
	}

	req, _ := http.NewRequest("GET", "/api/health", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected API routes to be unthrottled, got %d", resp.Code)
	}
}
