package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/trezcool/darasa/core/document"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/services/email"
	"github.com/trezcool/darasa/tests"

	echoapi "github.com/trezcool/darasa/apps/api/echo"
)

func Test_documentApi_create(t *testing.T) {
	student := testutil.CreateUser(t, usrRepo, "DC Hero", "dc_hero", "dc.hero@test.cd", "dc-school", "", []string{user.RoleStudent}, true)
	studentToken := getToken(t, student)

	t.Run("Auth required", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}
		req, rec := newRequest(http.MethodPost, "/v1/documents", marchallObj(t, document.NewDocument{Title: "Notes", Kind: document.KindDoc}))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("Unknown kind rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/documents", studentToken,
			marchallObj(t, document.NewDocument{Title: "Notes", Kind: "spreadsheet"}))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("Owner is stamped from the token", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/documents", studentToken,
			marchallObj(t, document.NewDocument{Title: "Notes", Kind: document.KindDoc}))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}

		var doc document.Document
		if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
			t.Fatalf("json.Unmarshal() failed: %v", err)
		}
		if doc.ID == "" {
			t.Error("failed! empty document ID")
		}
		if doc.OwnerID != student.ID {
			t.Errorf("failed! OwnerID = %v; want %v", doc.OwnerID, student.ID)
		}
		if doc.SchoolID != "dc-school" {
			t.Errorf("failed! SchoolID = %v; want dc-school", doc.SchoolID)
		}
		if doc.Visibility != document.VisibilityPrivate {
			t.Errorf("failed! Visibility = %v; want %v", doc.Visibility, document.VisibilityPrivate)
		}
		if doc.Version != 1 {
			t.Errorf("failed! Version = %v; want 1", doc.Version)
		}
	})
}

func Test_documentApi_query(t *testing.T) {
	school := "dq-school"
	student1 := testutil.CreateUser(t, usrRepo, "DQ One", "dq_one", "dq.one@test.cd", school, "", []string{user.RoleStudent}, true)
	student2 := testutil.CreateUser(t, usrRepo, "DQ Two", "dq_two", "dq.two@test.cd", school, "", []string{user.RoleStudent}, true)
	admin := testutil.CreateUser(t, usrRepo, "DQ Admin", "dq_admin", "dq.admin@test.cd", school, "", []string{user.RoleAdmin}, true)
	outsider := testutil.CreateUser(t, usrRepo, "DQ Out", "dq_out", "dq.out@test.cd", "dq-other-school", "", []string{user.RoleStudent}, true)

	own := testutil.CreateDocument(t, docRepo, "Own", document.KindDoc, student1.ID, school, document.VisibilityPrivate)
	shared := testutil.CreateDocument(t, docRepo, "Shared", document.KindSheet, student2.ID, school, document.VisibilityInternal)
	hidden := testutil.CreateDocument(t, docRepo, "Hidden", document.KindDoc, student2.ID, school, document.VisibilityPrivate)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Own and school non-private", token: getToken(t, student1),
			wantData: marchallList(t, own, shared),
		},
		{
			name: "Private stays with its owner", token: getToken(t, student2),
			wantData: marchallList(t, shared, hidden),
		},
		{
			name: "Admin sees the whole school", token: getToken(t, admin),
			wantData: marchallList(t, own, shared, hidden),
		},
		{
			name: "Other schools see nothing", token: getToken(t, outsider),
			wantData: marchallList(t, []interface{}{}...),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/v1/documents"
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_documentApi_retrieveRenameDestroy(t *testing.T) {
	school := "dr-school"
	owner := testutil.CreateUser(t, usrRepo, "DR Owner", "dr_owner", "dr.owner@test.cd", school, "", []string{user.RoleTeacher}, true)
	peer := testutil.CreateUser(t, usrRepo, "DR Peer", "dr_peer", "dr.peer@test.cd", school, "", []string{user.RoleStudent}, true)
	admin := testutil.CreateUser(t, usrRepo, "DR Admin", "dr_admin", "dr.admin@test.cd", school, "", []string{user.RoleAdmin}, true)

	doc := testutil.CreateDocument(t, docRepo, "Syllabus", document.KindDoc, owner.ID, school, document.VisibilityInternal)
	secret := testutil.CreateDocument(t, docRepo, "Secret", document.KindDoc, owner.ID, school, document.VisibilityPrivate)

	ownerToken := getToken(t, owner)
	peerToken := getToken(t, peer)

	tests := []httpTest{
		{
			name: "Retrieve visible document", method: http.MethodGet, path: "/v1/documents/" + doc.ID,
			token: peerToken, wantCode: http.StatusOK, wantData: marchallObj(t, doc),
		},
		{
			// existence is hidden from unrelated users
			name: "Private document hidden from peers", method: http.MethodGet, path: "/v1/documents/" + secret.ID,
			token: peerToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "Unknown document", method: http.MethodGet, path: "/v1/documents/nope",
			token: ownerToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "Rename is owner-only", method: http.MethodPut, path: "/v1/documents/" + doc.ID,
			token: peerToken, body: marchallObj(t, document.RenameDocument{Title: "Hijacked"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Rename requires a title", method: http.MethodPut, path: "/v1/documents/" + doc.ID,
			token: ownerToken, body: marchallObj(t, document.RenameDocument{}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"title": "this field is required"}),
		},
		{
			name: "Delete is owner-only", method: http.MethodDelete, path: "/v1/documents/" + doc.ID,
			token: peerToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("Owner renames", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/documents/"+doc.ID, ownerToken,
			marchallObj(t, document.RenameDocument{Title: "Syllabus 2026"}))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var renamed document.Document
		if err := json.Unmarshal(rec.Body.Bytes(), &renamed); err != nil {
			t.Fatalf("json.Unmarshal() failed: %v", err)
		}
		if renamed.Title != "Syllabus 2026" {
			t.Errorf("failed! Title = %v; want Syllabus 2026", renamed.Title)
		}
	})

	t.Run("Admin deletes", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/documents/"+secret.ID, getToken(t, admin))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		if _, err := docRepo.GetDocumentByID(context.Background(), secret.ID); err != document.ErrNotFound {
			t.Errorf("GetDocumentByID() err = %v; want ErrNotFound", err)
		}
	})
}

func Test_documentApi_updateContent(t *testing.T) {
	school := "du-school"
	owner := testutil.CreateUser(t, usrRepo, "DU Owner", "du_owner", "du.owner@test.cd", school, "", []string{user.RoleStudent}, true)
	doc := testutil.CreateDocument(t, docRepo, "Budget", document.KindSheet, owner.ID, school, document.VisibilityPrivate)
	ownerToken := getToken(t, owner)

	sheet := doc.Content.Clone()
	if err := sheet.SetCell("A1", "10"); err != nil {
		t.Fatalf("SetCell() failed: %v", err)
	}

	t.Run("Autosave keeps the version", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/documents/"+doc.ID+"/content", ownerToken,
			marchallObj(t, echoapi.UpdateContentRequest{Content: sheet}))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var updated document.Document
		if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
			t.Fatalf("json.Unmarshal() failed: %v", err)
		}
		if updated.Version != 1 {
			t.Errorf("failed! Version = %v; want 1", updated.Version)
		}
		if updated.Title != "Budget" { // omitted title falls back to the current one
			t.Errorf("failed! Title = %v; want Budget", updated.Title)
		}
	})

	t.Run("Explicit save bumps the version", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/documents/"+doc.ID+"/content", ownerToken,
			marchallObj(t, echoapi.UpdateContentRequest{Title: "Budget v2", Content: sheet, BumpVersion: true}))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var updated document.Document
		if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
			t.Fatalf("json.Unmarshal() failed: %v", err)
		}
		if updated.Version != 2 {
			t.Errorf("failed! Version = %v; want 2", updated.Version)
		}
		if updated.Title != "Budget v2" {
			t.Errorf("failed! Title = %v; want Budget v2", updated.Title)
		}
	})

	t.Run("Kind cannot change", func(t *testing.T) {
		prose, err := document.NewContent(document.KindDoc)
		if err != nil {
			t.Fatalf("NewContent() failed: %v", err)
		}
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: document.ErrKindMismatch.Error()}),
		}
		req, rec := newAuthRequest(http.MethodPut, "/v1/documents/"+doc.ID+"/content", ownerToken,
			marchallObj(t, echoapi.UpdateContentRequest{Content: prose}))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}

func Test_documentApi_share(t *testing.T) {
	school := "ds-school"
	owner := testutil.CreateUser(t, usrRepo, "DS Owner", "ds_owner", "ds.owner@test.cd", school, "", []string{user.RoleTeacher}, true)
	doc := testutil.CreateDocument(t, docRepo, "Homework", document.KindDoc, owner.ID, school, document.VisibilityPrivate)
	ownerToken := getToken(t, owner)

	t.Run("Recipients required", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/documents/"+doc.ID+"/share", ownerToken,
			marchallObj(t, document.ShareDocument{}))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("Recipients notified", func(t *testing.T) {
		emailsvc.SentMessages = nil // reset

		tt := httpTest{
			wantCode: http.StatusOK,
			wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Document shared."}),
		}
		req, rec := newAuthRequest(http.MethodPost, "/v1/documents/"+doc.ID+"/share", ownerToken,
			marchallObj(t, document.ShareDocument{Emails: []string{"friend@test.cd"}}))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)

		if len(emailsvc.SentMessages) != 1 {
			t.Fatalf("failed! len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
		}
		msg := emailsvc.SentMessages[0]
		if msg.To[0].Address != "friend@test.cd" {
			t.Errorf("failed! To = %v; want friend@test.cd", msg.To[0].Address)
		}
		if !strings.Contains(msg.Subject, "Homework") {
			t.Errorf("failed! subject %q does not name the document", msg.Subject)
		}
	})
}

func Test_documentApi_export(t *testing.T) {
	school := "de-school"
	owner := testutil.CreateUser(t, usrRepo, "DE Owner", "de_owner", "de.owner@test.cd", school, "", []string{user.RoleStudent}, true)
	sheetDoc := testutil.CreateDocument(t, docRepo, "Numbers", document.KindSheet, owner.ID, school, document.VisibilityPrivate)
	proseDoc := testutil.CreateDocument(t, docRepo, "Notes", document.KindDoc, owner.ID, school, document.VisibilityPrivate)
	ownerToken := getToken(t, owner)

	sheet := sheetDoc.Content.Clone()
	for addr, val := range map[string]string{"A1": "10", "B1": "20", "A2": "=SUM(A1:B1)"} {
		if err := sheet.SetCell(addr, val); err != nil {
			t.Fatalf("SetCell() failed: %v", err)
		}
	}
	if _, err := docRepo.UpdateDocumentContent(context.Background(), document.UpdateContent{
		DocID: sheetDoc.ID, NewTitle: sheetDoc.Title, Content: sheet,
	}); err != nil {
		t.Fatalf("UpdateDocumentContent() failed: %v", err)
	}

	t.Run("CSV evaluates formulas", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/documents/"+sheetDoc.ID+"/export?format=csv", ownerToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		if got, want := rec.Body.String(), "10,20\n30,\n"; got != want {
			t.Errorf("failed! body = %q; want %q", got, want)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
			t.Errorf("failed! Content-Type = %q; want text/csv", ct)
		}
	})

	t.Run("CSV is sheets-only", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/documents/"+proseDoc.ID+"/export?format=csv", ownerToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("HTML works for every kind", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/documents/"+proseDoc.ID+"/export", ownerToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "<title>Notes</title>") {
			t.Error("failed! export does not carry the document title")
		}
	})

	t.Run("Unknown format rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/documents/"+sheetDoc.ID+"/export?format=pdf", ownerToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusBadRequest)
		}
	})
}

func Test_documentApi_uploadAttachment(t *testing.T) {
	school := "da-school"
	owner := testutil.CreateUser(t, usrRepo, "DA Owner", "da_owner", "da.owner@test.cd", school, "", []string{user.RoleStudent}, true)
	doc := testutil.CreateDocument(t, docRepo, "Scrapbook", document.KindDoc, owner.ID, school, document.VisibilityPrivate)
	ownerToken := getToken(t, owner)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "photo.png")
	if err != nil {
		t.Fatalf("CreateFormFile() failed: %v", err)
	}
	if _, err = fw.Write([]byte("not-really-a-png")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err = mw.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/"+doc.ID+"/attachments", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+ownerToken)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var resp echoapi.AttachmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v", err)
	}
	if !strings.HasPrefix(resp.Key, doc.ID+"/") {
		t.Errorf("failed! key %q is not namespaced under the document", resp.Key)
	}
	if !strings.HasSuffix(resp.Key, ".png") {
		t.Errorf("failed! key %q lost the file extension", resp.Key)
	}
	if resp.URL == "" {
		t.Error("failed! empty URL")
	}
}
