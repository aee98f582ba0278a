package document

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/docshare/internal/model"
	"github.com/hitoshi/docshare/internal/policy"
	"github.com/hitoshi/docshare/internal/storage"
)

// mockDocumentRepo はrepository.DocumentRepositoryのモック実装。
type mockDocumentRepo struct {
	createFn             func(ctx context.Context, doc *model.Document) error
	findByIDFn           func(ctx context.Context, id string) (*model.Document, error)
	findByShareTokenFn   func(ctx context.Context, token string) (*model.Document, error)
	listByOwnerFn        func(ctx context.Context, ownerID string) ([]*model.Document, error)
	updateNameFn         func(ctx context.Context, id, name string) error
	updateShareTokenFn   func(ctx context.Context, id, token string) error
	deleteByIDFn         func(ctx context.Context, id string) error
	listStorageKeysFn    func(ctx context.Context) ([]string, error)
	existsByStorageKeyFn func(ctx context.Context, storageKey string) (bool, error)
}

func (m *mockDocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	if m.createFn != nil {
		return m.createFn(ctx, doc)
	}
	return nil
}

func (m *mockDocumentRepo) FindByID(ctx context.Context, id string) (*model.Document, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockDocumentRepo) FindByShareToken(ctx context.Context, token string) (*model.Document, error) {
	if m.findByShareTokenFn != nil {
		return m.findByShareTokenFn(ctx, token)
	}
	return nil, nil
}

func (m *mockDocumentRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Document, error) {
	if m.listByOwnerFn != nil {
		return m.listByOwnerFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockDocumentRepo) UpdateName(ctx context.Context, id, name string) error {
	if m.updateNameFn != nil {
		return m.updateNameFn(ctx, id, name)
	}
	return nil
}

func (m *mockDocumentRepo) UpdateShareToken(ctx context.Context, id, token string) error {
	if m.updateShareTokenFn != nil {
		return m.updateShareTokenFn(ctx, id, token)
	}
	return nil
}

func (m *mockDocumentRepo) ClaimShareToken(ctx context.Context, id, token string) (bool, error) {
	return true, nil
}

func (m *mockDocumentRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockDocumentRepo) ListStorageKeys(ctx context.Context) ([]string, error) {
	if m.listStorageKeysFn != nil {
		return m.listStorageKeysFn(ctx)
	}
	return nil, nil
}

func (m *mockDocumentRepo) ExistsByStorageKey(ctx context.Context, storageKey string) (bool, error) {
	if m.existsByStorageKeyFn != nil {
		return m.existsByStorageKeyFn(ctx, storageKey)
	}
	return false, nil
}

// mockObjectStore はstorage.ObjectStoreのモック実装。
type mockObjectStore struct {
	putFn        func(ctx context.Context, key, contentType string, body io.Reader) error
	deleteFn     func(ctx context.Context, key string) error
	presignGetFn func(ctx context.Context, key string, expires time.Duration) (string, error)

	putKeys     []string
	deletedKeys []string
}

func (m *mockObjectStore) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	m.putKeys = append(m.putKeys, key)
	if m.putFn != nil {
		return m.putFn(ctx, key, contentType, body)
	}
	return nil
}

func (m *mockObjectStore) Delete(ctx context.Context, key string) error {
	m.deletedKeys = append(m.deletedKeys, key)
	if m.deleteFn != nil {
		return m.deleteFn(ctx, key)
	}
	return nil
}

func (m *mockObjectStore) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	if m.presignGetFn != nil {
		return m.presignGetFn(ctx, key, expires)
	}
	return "https://storage.example.com/" + key, nil
}

func (m *mockObjectStore) ListKeys(ctx context.Context) ([]string, error) {
	return nil, nil
}

func newTestDocumentService(docs *mockDocumentRepo, store *mockObjectStore) *Service {
	svc := NewService(docs, store, policy.New(), ServiceConfig{PresignExpiry: time.Minute})
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return svc
}

func assertAPIErrorCode(t *testing.T, err error, wantCode string) {
	t.Helper()
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("error = %v, want *model.APIError", err)
	}
	if apiErr.Code != wantCode {
		t.Errorf("code = %q, want %q", apiErr.Code, wantCode)
	}
}

// --- Upload テスト ---

func TestService_Upload_Success(t *testing.T) {
	var created *model.Document
	var putContentType string

	docs := &mockDocumentRepo{
		createFn: func(ctx context.Context, doc *model.Document) error {
			created = doc
			return nil
		},
	}
	store := &mockObjectStore{
		putFn: func(ctx context.Context, key, contentType string, body io.Reader) error {
			putContentType = contentType
			return nil
		},
	}
	svc := newTestDocumentService(docs, store)

	doc, err := svc.Upload(context.Background(), policy.Authenticated("user-1", ""), UploadInput{
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Body:        bytes.NewReader([]byte("%PDF-1.7")),
	})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	// ストレージキーはエポックミリ秒とサニタイズ済みファイル名から構成される
	if doc.StorageKey != "1700000000000-report.pdf" {
		t.Errorf("StorageKey = %q, want %q", doc.StorageKey, "1700000000000-report.pdf")
	}
	if doc.OwnerID != "user-1" {
		t.Errorf("OwnerID = %q, want %q", doc.OwnerID, "user-1")
	}
	if doc.Name != "report.pdf" {
		t.Errorf("Name = %q, want original filename", doc.Name)
	}
	if doc.IsShared() {
		t.Error("new document must not be shared")
	}
	if putContentType != "application/pdf" {
		t.Errorf("content type = %q, want application/pdf", putContentType)
	}
	if created == nil {
		t.Fatal("expected metadata row to be created")
	}
}

func TestService_Upload_SanitizesFilenameInStorageKey(t *testing.T) {
	docs := &mockDocumentRepo{}
	store := &mockObjectStore{}
	svc := newTestDocumentService(docs, store)

	doc, err := svc.Upload(context.Background(), policy.Authenticated("user-1", ""), UploadInput{
		Filename:    "my report (v2).pdf",
		ContentType: "application/pdf",
		Body:        strings.NewReader("%PDF"),
	})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	if doc.StorageKey != "1700000000000-my_report__v2_.pdf" {
		t.Errorf("StorageKey = %q, want sanitized key", doc.StorageKey)
	}
	// 表示名は元のファイル名のまま
	if doc.Name != "my report (v2).pdf" {
		t.Errorf("Name = %q, want original filename", doc.Name)
	}
}

func TestService_Upload_NonPDF_RejectedBeforeStorage(t *testing.T) {
	store := &mockObjectStore{}
	svc := newTestDocumentService(&mockDocumentRepo{}, store)

	_, err := svc.Upload(context.Background(), policy.Authenticated("user-1", ""), UploadInput{
		Filename:    "photo.png",
		ContentType: "image/png",
		Body:        strings.NewReader("PNG"),
	})
	if err == nil {
		t.Fatal("expected error for non-PDF upload")
	}
	assertAPIErrorCode(t, err, model.ErrCodeNotPDF)

	// ネットワーク呼び出しの前に拒否される
	if len(store.putKeys) != 0 {
		t.Error("object must not be stored for rejected upload")
	}
}

func TestService_Upload_Anonymous_ReturnsUnauthorized(t *testing.T) {
	svc := newTestDocumentService(&mockDocumentRepo{}, &mockObjectStore{})

	_, err := svc.Upload(context.Background(), policy.Anonymous(""), UploadInput{
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Body:        strings.NewReader("%PDF"),
	})
	if err == nil {
		t.Fatal("expected error for anonymous upload")
	}
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
}

func TestService_Upload_MetadataFailure_CompensatesObjectDelete(t *testing.T) {
	docs := &mockDocumentRepo{
		createFn: func(ctx context.Context, doc *model.Document) error {
			return errors.New("insert failed")
		},
	}
	store := &mockObjectStore{}
	svc := newTestDocumentService(docs, store)

	_, err := svc.Upload(context.Background(), policy.Authenticated("user-1", ""), UploadInput{
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Body:        strings.NewReader("%PDF"),
	})
	if err == nil {
		t.Fatal("expected error when metadata insert fails")
	}
	assertAPIErrorCode(t, err, model.ErrCodeUploadFailed)

	// 格納済みオブジェクトの補償削除が行われる
	if len(store.deletedKeys) != 1 || store.deletedKeys[0] != "1700000000000-report.pdf" {
		t.Errorf("deletedKeys = %v, want compensating delete of stored object", store.deletedKeys)
	}
}

// --- Get テスト ---

func TestService_Get_Owner_Succeeds(t *testing.T) {
	docs := &mockDocumentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Document, error) {
			return &model.Document{ID: id, OwnerID: "user-1"}, nil
		},
	}
	svc := newTestDocumentService(docs, &mockObjectStore{})

	doc, err := svc.Get(context.Background(), policy.Authenticated("user-1", ""), "doc-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if doc.ID != "doc-1" {
		t.Errorf("doc.ID = %q, want %q", doc.ID, "doc-1")
	}
}

func TestService_Get_AnonymousWithValidToken_Succeeds(t *testing.T) {
	docs := &mockDocumentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Document, error) {
			return &model.Document{ID: id, OwnerID: "user-1", ShareToken: "tok-abc"}, nil
		},
	}
	svc := newTestDocumentService(docs, &mockObjectStore{})

	if _, err := svc.Get(context.Background(), policy.Anonymous("tok-abc"), "doc-1"); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
}

func TestService_Get_WrongToken_ReturnsNotFound(t *testing.T) {
	docs := &mockDocumentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Document, error) {
			return &model.Document{ID: id, OwnerID: "user-1", ShareToken: "tok-abc"}, nil
		},
	}
	svc := newTestDocumentService(docs, &mockObjectStore{})

	_, err := svc.Get(context.Background(), policy.Anonymous("tok-wrong"), "doc-1")
	if err == nil {
		t.Fatal("expected error for wrong share token")
	}
	// 拒否と不存在は区別されない
	assertAPIErrorCode(t, err, model.ErrCodeDocumentNotFound)
}

func TestService_Get_MissingDocument_ReturnsNotFound(t *testing.T) {
	svc := newTestDocumentService(&mockDocumentRepo{}, &mockObjectStore{})

	_, err := svc.Get(context.Background(), policy.Authenticated("user-1", ""), "ghost")
	if err == nil {
		t.Fatal("expected error for missing document")
	}
	assertAPIErrorCode(t, err, model.ErrCodeDocumentNotFound)
}

// --- List テスト ---

func TestService_List_ReturnsOwnedDocuments(t *testing.T) {
	docs := &mockDocumentRepo{
		listByOwnerFn: func(ctx context.Context, ownerID string) ([]*model.Document, error) {
			if ownerID != "user-1" {
				t.Errorf("ownerID = %q, want %q", ownerID, "user-1")
			}
			return []*model.Document{{ID: "doc-1", OwnerID: ownerID}}, nil
		},
	}
	svc := newTestDocumentService(docs, &mockObjectStore{})

	result, err := svc.List(context.Background(), policy.Authenticated("user-1", ""))
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("len(result) = %d, want 1", len(result))
	}
}

func TestService_List_Anonymous_ReturnsNotFound(t *testing.T) {
	svc := newTestDocumentService(&mockDocumentRepo{}, &mockObjectStore{})

	if _, err := svc.List(context.Background(), policy.Anonymous("tok-abc")); err == nil {
		t.Fatal("expected error for anonymous list")
	}
}

// --- Rename テスト ---

func TestService_Rename_Owner_Succeeds(t *testing.T) {
	renamed := ""
	docs := &mockDocumentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Document, error) {
			return &model.Document{ID: id, OwnerID: "user-1", Name: "old.pdf", StorageKey: "123-old.pdf"}, nil
		},
		updateNameFn: func(ctx context.Context, id, name string) error {
			renamed = name
			return nil
		},
	}
	svc := newTestDocumentService(docs, &mockObjectStore{})

	doc, err := svc.Rename(context.Background(), policy.Authenticated("user-1", ""), "doc-1", "new.pdf")
	if err != nil {
		t.Fatalf("Rename returned error: %v", err)
	}
	if renamed != "new.pdf" || doc.Name != "new.pdf" {
		t.Errorf("renamed = %q / doc.Name = %q, want %q", renamed, doc.Name, "new.pdf")
	}
	// オブジェクトキーはリネームしない
	if doc.StorageKey != "123-old.pdf" {
		t.Errorf("StorageKey = %q, must not change on rename", doc.StorageKey)
	}
}

func TestService_Rename_EmptyName_ReturnsError(t *testing.T) {
	svc := newTestDocumentService(&mockDocumentRepo{}, &mockObjectStore{})

	_, err := svc.Rename(context.Background(), policy.Authenticated("user-1", ""), "doc-1", "   ")
	if err == nil {
		t.Fatal("expected error for empty name")
	}
	assertAPIErrorCode(t, err, model.ErrCodeInvalidRequest)
}

func TestService_Rename_NonOwner_ReturnsNotFound(t *testing.T) {
	docs := &mockDocumentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Document, error) {
			return &model.Document{ID: id, OwnerID: "user-1", ShareToken: "tok-abc"}, nil
		},
	}
	svc := newTestDocumentService(docs, &mockObjectStore{})

	// 共有トークン提示でも変更操作は所有者のみ
	_, err := svc.Rename(context.Background(), policy.Authenticated("user-2", "tok-abc"), "doc-1", "new.pdf")
	if err == nil {
		t.Fatal("expected error for non-owner rename")
	}
	assertAPIErrorCode(t, err, model.ErrCodeDocumentNotFound)
}

// --- Delete テスト ---

func TestService_Delete_Owner_DeletesMetadataAndObject(t *testing.T) {
	metadataDeleted := false
	docs := &mockDocumentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Document, error) {
			return &model.Document{ID: id, OwnerID: "user-1", StorageKey: "123-a.pdf"}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			metadataDeleted = true
			return nil
		},
	}
	store := &mockObjectStore{}
	svc := newTestDocumentService(docs, store)

	if err := svc.Delete(context.Background(), policy.Authenticated("user-1", ""), "doc-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if !metadataDeleted {
		t.Error("expected metadata row to be deleted")
	}
	if len(store.deletedKeys) != 1 || store.deletedKeys[0] != "123-a.pdf" {
		t.Errorf("deletedKeys = %v, want object delete", store.deletedKeys)
	}
}

func TestService_Delete_ObjectDeleteFailure_StillSucceeds(t *testing.T) {
	docs := &mockDocumentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Document, error) {
			return &model.Document{ID: id, OwnerID: "user-1", StorageKey: "123-a.pdf"}, nil
		},
	}
	store := &mockObjectStore{
		deleteFn: func(ctx context.Context, key string) error {
			return errors.New("transient failure")
		},
	}
	svc := newTestDocumentService(docs, store)

	// オブジェクト削除の失敗は整合性スイープが回収するため、操作自体は成功する
	if err := svc.Delete(context.Background(), policy.Authenticated("user-1", ""), "doc-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
}

func TestService_Delete_NonOwner_ReturnsNotFound(t *testing.T) {
	docs := &mockDocumentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Document, error) {
			return &model.Document{ID: id, OwnerID: "user-1"}, nil
		},
	}
	svc := newTestDocumentService(docs, &mockObjectStore{})

	err := svc.Delete(context.Background(), policy.Authenticated("user-2", ""), "doc-1")
	if err == nil {
		t.Fatal("expected error for non-owner delete")
	}
	assertAPIErrorCode(t, err, model.ErrCodeDocumentNotFound)
}

// --- FileURL テスト ---

func TestService_FileURL_UsesConfiguredExpiry(t *testing.T) {
	var gotExpires time.Duration
	docs := &mockDocumentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Document, error) {
			return &model.Document{ID: id, OwnerID: "user-1", StorageKey: "123-a.pdf"}, nil
		},
	}
	store := &mockObjectStore{
		presignGetFn: func(ctx context.Context, key string, expires time.Duration) (string, error) {
			gotExpires = expires
			return "https://storage.example.com/" + key + "?sig=abc", nil
		},
	}
	svc := newTestDocumentService(docs, store)

	url, err := svc.FileURL(context.Background(), policy.Authenticated("user-1", ""), "doc-1")
	if err != nil {
		t.Fatalf("FileURL returned error: %v", err)
	}
	if url == "" {
		t.Error("expected non-empty presigned URL")
	}
	if gotExpires != time.Minute {
		t.Errorf("expires = %v, want %v", gotExpires, time.Minute)
	}
}

func TestService_FileURL_Denied_ReturnsNotFound(t *testing.T) {
	docs := &mockDocumentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Document, error) {
			return &model.Document{ID: id, OwnerID: "user-1"}, nil
		},
	}
	svc := newTestDocumentService(docs, &mockObjectStore{})

	_, err := svc.FileURL(context.Background(), policy.Anonymous("tok-wrong"), "doc-1")
	if err == nil {
		t.Fatal("expected error for denied file URL")
	}
	assertAPIErrorCode(t, err, model.ErrCodeDocumentNotFound)
}

// --- SanitizeFilename テスト ---

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"my report (v2).pdf", "my_report__v2_.pdf"},
		{"日本語ファイル.pdf", "_______.pdf"},
		{"../../etc/passwd", ".._.._etc_passwd"},
	}

	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// コンパイル時のインターフェース適合チェック
var _ storage.ObjectStore = (*mockObjectStore)(nil)
