package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/formlink/pkg/formlink/auth"
	"github.com/mikepea/formlink/pkg/formlink/models"
	"github.com/mikepea/formlink/pkg/formlink/storage"
	"github.com/xuri/excelize/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func strPtr(s string) *string { return &s }

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 1, color.RGBA{G: 180, A: 255})
	return img
}

func pngBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func sampleForms() []models.Form {
	groupID := uint(1)
	return []models.Form{
		{
			ID:               "01HV0000000000000000000001",
			FirstName:        "Ada",
			MiddleName:       strPtr("King"),
			LastName:         "Lovelace",
			EyeColor:         "blue",
			HairColor:        "brown",
			Address:          strPtr("1 Analytical Way"),
			DateOfBirth:      time.Date(1990, 12, 10, 0, 0, 0, 0, time.UTC),
			Height:           165.5,
			Weight:           55,
			Gender:           "female",
			State:            "NY",
			City:             "Albany",
			ZipCode:          "12207",
			OrganDonor:       true,
			CorrectiveLenses: false,
			GroupID:          &groupID,
			SubmittedAt:      time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
		},
		{
			ID:               "01HV0000000000000000000002",
			FirstName:        "Alan",
			LastName:         "Turing",
			EyeColor:         "hazel",
			HairColor:        "black",
			DateOfBirth:      time.Date(1985, 6, 23, 0, 0, 0, 0, time.UTC),
			Height:           180,
			Weight:           70.25,
			Gender:           "male",
			State:            "CA",
			City:             "Fresno",
			ZipCode:          "93650",
			CorrectiveLenses: true,
			GroupID:          &groupID,
			SubmittedAt:      time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:          "01HV0000000000000000000003",
			FirstName:   "Grace",
			LastName:    "Hopper",
			EyeColor:    "green",
			HairColor:   "gray",
			DateOfBirth: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			Height:      160,
			Weight:      50,
			Gender:      "female",
			State:       "VA",
			City:        "Arlington",
			ZipCode:     "22201",
			GroupID:     &groupID,
			SubmittedAt: time.Date(2024, 2, 1, 23, 59, 59, 0, time.UTC),
		},
	}
}

func readRows(t *testing.T, data []byte) [][]string {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	return rows
}

func TestBuildSpreadsheet(t *testing.T) {
	data, err := BuildSpreadsheet(models.Group{Name: "Spring intake"}, sampleForms())
	if err != nil {
		t.Fatalf("BuildSpreadsheet failed: %v", err)
	}

	rows := readRows(t, data)
	if len(rows) != 4 {
		t.Fatalf("Expected header plus 3 rows, got %d", len(rows))
	}
	if !reflect.DeepEqual(rows[0], Headers) {
		t.Errorf("Unexpected header row: %v", rows[0])
	}

	want := []string{
		"Ada", "Lovelace", "King", "blue", "brown", "1 Analytical Way", "1990-12-10",
		"165.5", "55", "NY", "Albany", "12207", "female", "Yes", "No", "2024-02-03 04:05:06",
	}
	if !reflect.DeepEqual(rows[1], want) {
		t.Errorf("Unexpected first row:\n got %v\nwant %v", rows[1], want)
	}

	// Absent optionals are empty cells, booleans Yes/No
	second := rows[2]
	if second[2] != "" || second[5] != "" {
		t.Errorf("Expected empty optional cells, got %q and %q", second[2], second[5])
	}
	if second[13] != "No" || second[14] != "Yes" {
		t.Errorf("Expected No/Yes, got %s/%s", second[13], second[14])
	}
	if rows[3][15] != "2024-02-01 23:59:59" {
		t.Errorf("Unexpected submitted at: %s", rows[3][15])
	}
}

func TestBuildSpreadsheetDeterministic(t *testing.T) {
	group := models.Group{Name: "Repeatable"}
	first, err := BuildSpreadsheet(group, sampleForms())
	if err != nil {
		t.Fatalf("BuildSpreadsheet failed: %v", err)
	}
	second, err := BuildSpreadsheet(group, sampleForms())
	if err != nil {
		t.Fatalf("BuildSpreadsheet failed: %v", err)
	}

	if !reflect.DeepEqual(readRows(t, first), readRows(t, second)) {
		t.Error("Expected identical rows for identical input")
	}
	if !bytes.Equal(first, second) {
		t.Error("Expected byte-identical workbooks for identical input")
	}
}

func TestBuildSpreadsheetEmpty(t *testing.T) {
	data, err := BuildSpreadsheet(models.Group{Name: "Empty"}, nil)
	if err != nil {
		t.Fatalf("BuildSpreadsheet failed: %v", err)
	}
	rows := readRows(t, data)
	if len(rows) != 1 {
		t.Errorf("Expected header row only, got %d rows", len(rows))
	}
}

type memoryLookup struct {
	blobs map[string][]byte
	err   error
}

func (m memoryLookup) Get(ctx context.Context, id string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	data, ok := m.blobs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func archiveEntries(t *testing.T, data []byte) []*zip.File {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	return zr.File
}

func TestBuildPhotoArchiveSkipsMissing(t *testing.T) {
	forms := sampleForms()
	lookup := memoryLookup{blobs: map[string][]byte{
		forms[0].ID: pngBytes(t),
		forms[2].ID: jpegBytes(t),
	}}

	data, err := BuildPhotoArchive(context.Background(), forms, lookup)
	if err != nil {
		t.Fatalf("BuildPhotoArchive failed: %v", err)
	}

	entries := archiveEntries(t, data)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Name != "Ada_Lovelace_01HV0000000000000000000001.png" {
		t.Errorf("Unexpected first entry: %s", entries[0].Name)
	}
	if entries[1].Name != "Grace_Hopper_01HV0000000000000000000003.jpg" {
		t.Errorf("Unexpected second entry: %s", entries[1].Name)
	}

	rc, _ := entries[0].Open()
	content, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(content, lookup.blobs[forms[0].ID]) {
		t.Error("Expected entry content to match the stored photo")
	}
}

func TestBuildPhotoArchiveFallbackExtension(t *testing.T) {
	forms := sampleForms()[:1]
	lookup := memoryLookup{blobs: map[string][]byte{forms[0].ID: {0x00, 0x01, 0x02, 0x03}}}

	data, err := BuildPhotoArchive(context.Background(), forms, lookup)
	if err != nil {
		t.Fatalf("BuildPhotoArchive failed: %v", err)
	}
	entries := archiveEntries(t, data)
	if len(entries) != 1 || entries[0].Name != "Ada_Lovelace_01HV0000000000000000000001.png" {
		t.Errorf("Expected png fallback entry, got %v", entries)
	}
}

func TestBuildPhotoArchiveDeterministic(t *testing.T) {
	forms := sampleForms()
	lookup := memoryLookup{blobs: map[string][]byte{forms[0].ID: pngBytes(t), forms[1].ID: jpegBytes(t)}}

	first, _ := BuildPhotoArchive(context.Background(), forms, lookup)
	second, _ := BuildPhotoArchive(context.Background(), forms, lookup)
	if !bytes.Equal(first, second) {
		t.Error("Expected byte-identical archives for identical input")
	}
}

func TestBuildPhotoArchiveEmpty(t *testing.T) {
	data, err := BuildPhotoArchive(context.Background(), nil, memoryLookup{})
	if err != nil {
		t.Fatalf("BuildPhotoArchive failed: %v", err)
	}
	if entries := archiveEntries(t, data); len(entries) != 0 {
		t.Errorf("Expected empty archive, got %d entries", len(entries))
	}
}

func TestBuildPhotoArchiveLookupError(t *testing.T) {
	boom := errors.New("storage offline")
	_, err := BuildPhotoArchive(context.Background(), sampleForms(), memoryLookup{err: boom})
	if !errors.Is(err, boom) {
		t.Errorf("Expected lookup error, got %v", err)
	}
}

func TestEntryNameSanitizesSeparators(t *testing.T) {
	form := models.Form{ID: "01HV0000000000000000000009", FirstName: "../evil", LastName: `a\b`}
	name := EntryName(form, "png")
	if name != "--evil_a-b_01HV0000000000000000000009.png" {
		t.Errorf("Unexpected entry name: %s", name)
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	models.AutoMigrate(db)
	return db
}

func setupTestRouter(db *gorm.DB, lookup ImageLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(db, lookup, nil)
	api := r.Group("/api")
	api.Use(auth.AuthMiddleware())
	handler.RegisterRoutes(api)
	return r
}

func getAuthHeader(user models.User) string {
	token, _ := auth.GenerateToken(user.ID, user.Email, string(user.SystemRole))
	return "Bearer " + token
}

func TestExportHandlers(t *testing.T) {
	db := setupTestDB(t)
	owner := models.User{Email: "owner@example.com", PasswordHash: "x", Name: "Owner"}
	other := models.User{Email: "other@example.com", PasswordHash: "x", Name: "Other"}
	db.Create(&owner)
	db.Create(&other)
	group := models.Group{UserID: owner.ID, Name: "Exported"}
	db.Create(&group)

	forms := sampleForms()
	for i := range forms {
		forms[i].GroupID = &group.ID
		forms[i].LinkID = "link-token"
		db.Create(&forms[i])
	}
	lookup := memoryLookup{blobs: map[string][]byte{forms[1].ID: pngBytes(t)}}
	router := setupTestRouter(db, lookup)

	req, _ := http.NewRequest("GET", "/api/groups/"+itoa(group.ID)+"/export/spreadsheet", nil)
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Unexpected content type %s", ct)
	}
	rows := readRows(t, resp.Body.Bytes())
	if len(rows) != 4 || rows[1][0] != "Ada" || rows[3][0] != "Grace" {
		t.Errorf("Expected rows newest first, got %v", rows)
	}

	req, _ = http.NewRequest("GET", "/api/groups/"+itoa(group.ID)+"/export/photos", nil)
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}
	entries := archiveEntries(t, resp.Body.Bytes())
	if len(entries) != 1 || entries[0].Name != "Alan_Turing_01HV0000000000000000000002.png" {
		t.Errorf("Unexpected archive entries: %v", entries)
	}

	// Another user's group is not visible
	req, _ = http.NewRequest("GET", "/api/groups/"+itoa(group.ID)+"/export/spreadsheet", nil)
	req.Header.Set("Authorization", getAuthHeader(other))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
