// Package host implements the contracts.HostStore client that mutates the
// user's reference library through the local Zotero connector HTTP
// endpoint.
//
// The connector is the authority on record state; this client carries no
// retry logic of its own — per-item failures are isolated and reported by
// the batch executor, and timeout semantics belong to the connector.
package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/papermill-ai/papermill/pkg/models"
)

// DefaultConnectorURL is the local Zotero connector endpoint.
const DefaultConnectorURL = "http://127.0.0.1:23119"

// ZoteroClient talks to the local Zotero connector. Implements
// contracts.HostStore.
type ZoteroClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewZoteroClient creates a connector client. An empty baseURL selects
// DefaultConnectorURL.
func NewZoteroClient(baseURL string, httpClient *http.Client) *ZoteroClient {
	if baseURL == "" {
		baseURL = DefaultConnectorURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &ZoteroClient{baseURL: baseURL, httpClient: httpClient}
}

func (z *ZoteroClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, z.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("connector %s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode connector response: %w", err)
		}
	}
	return nil
}

// libQuery renders the optional library ID as a query string.
func libQuery(libraryID *int) string {
	if libraryID == nil {
		return ""
	}
	return "?library_id=" + strconv.Itoa(*libraryID)
}

// ── Annotations ──────────────────────────────────────────────

func (z *ZoteroClient) ApplyAnnotation(ctx context.Context, data *models.AnnotationData, highlight bool) (*models.AnnotationResult, error) {
	kind := "note"
	if highlight {
		kind = "highlight"
	}
	var out models.AnnotationResult
	err := z.do(ctx, http.MethodPost, "/papermill/annotations?kind="+kind, data, &out)
	if err != nil {
		return nil, err
	}
	if out.Key == "" {
		return nil, fmt.Errorf("connector returned no annotation key")
	}
	return &out, nil
}

func (z *ZoteroClient) DeleteAnnotation(ctx context.Context, libraryID *int, key string) error {
	return z.do(ctx, http.MethodDelete, "/papermill/annotations/"+url.PathEscape(key)+libQuery(libraryID), nil, nil)
}

// ── Notes ────────────────────────────────────────────────────

func (z *ZoteroClient) CreateNote(ctx context.Context, data *models.NoteData) (*models.NoteResult, error) {
	var out models.NoteResult
	if err := z.do(ctx, http.MethodPost, "/papermill/notes", data, &out); err != nil {
		return nil, err
	}
	if out.Key == "" {
		return nil, fmt.Errorf("connector returned no note key")
	}
	return &out, nil
}

func (z *ZoteroClient) DeleteNote(ctx context.Context, libraryID *int, key string) error {
	return z.do(ctx, http.MethodDelete, "/papermill/notes/"+url.PathEscape(key)+libQuery(libraryID), nil, nil)
}

// ── Items ────────────────────────────────────────────────────

func (z *ZoteroClient) CreateItem(ctx context.Context, data *models.CreateItemData) (*models.CreateItemResult, error) {
	var out models.CreateItemResult
	if err := z.do(ctx, http.MethodPost, "/papermill/items", data, &out); err != nil {
		return nil, err
	}
	if out.Key == "" {
		return nil, fmt.Errorf("connector returned no item key")
	}
	return &out, nil
}

func (z *ZoteroClient) DeleteItem(ctx context.Context, libraryID *int, key string) error {
	return z.do(ctx, http.MethodDelete, "/papermill/items/"+url.PathEscape(key)+libQuery(libraryID), nil, nil)
}

// ── Metadata ─────────────────────────────────────────────────

func (z *ZoteroClient) ApplyEditMetadata(ctx context.Context, data *models.EditMetadataData) (*models.EditMetadataResult, error) {
	var out models.EditMetadataResult
	path := "/papermill/items/" + url.PathEscape(data.ItemKey) + "/metadata" + libQuery(data.LibraryID)
	if err := z.do(ctx, http.MethodPatch, path, data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (z *ZoteroClient) GetItemField(ctx context.Context, libraryID *int, itemKey, field string) (string, error) {
	var out struct {
		Value string `json:"value"`
	}
	path := "/papermill/items/" + url.PathEscape(itemKey) + "/fields/" + url.PathEscape(field) + libQuery(libraryID)
	if err := z.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.Value, nil
}

func (z *ZoteroClient) SetItemField(ctx context.Context, libraryID *int, itemKey, field, value string) error {
	path := "/papermill/items/" + url.PathEscape(itemKey) + "/fields/" + url.PathEscape(field) + libQuery(libraryID)
	return z.do(ctx, http.MethodPut, path, map[string]string{"value": value}, nil)
}

func (z *ZoteroClient) GetCreators(ctx context.Context, libraryID *int, itemKey string) ([]models.Creator, error) {
	var out struct {
		Creators []models.Creator `json:"creators"`
	}
	path := "/papermill/items/" + url.PathEscape(itemKey) + "/creators" + libQuery(libraryID)
	if err := z.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Creators, nil
}

func (z *ZoteroClient) SetCreators(ctx context.Context, libraryID *int, itemKey string, creators []models.Creator) error {
	path := "/papermill/items/" + url.PathEscape(itemKey) + "/creators" + libQuery(libraryID)
	return z.do(ctx, http.MethodPut, path, map[string]any{"creators": creators}, nil)
}

// ── Collections ──────────────────────────────────────────────

func (z *ZoteroClient) CreateCollection(ctx context.Context, data *models.CreateCollectionData) (*models.CreateCollectionResult, error) {
	var out models.CreateCollectionResult
	if err := z.do(ctx, http.MethodPost, "/papermill/collections", data, &out); err != nil {
		return nil, err
	}
	if out.CollectionKey == "" {
		return nil, fmt.Errorf("connector returned no collection key")
	}
	return &out, nil
}

func (z *ZoteroClient) DeleteCollection(ctx context.Context, libraryID *int, key string) error {
	return z.do(ctx, http.MethodDelete, "/papermill/collections/"+url.PathEscape(key)+libQuery(libraryID), nil, nil)
}

// ── Organize ─────────────────────────────────────────────────

func (z *ZoteroClient) OrganizeItems(ctx context.Context, data *models.OrganizeItemsData) (*models.OrganizeItemsResult, error) {
	var out models.OrganizeItemsResult
	if err := z.do(ctx, http.MethodPost, "/papermill/items/organize", data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (z *ZoteroClient) RestoreOrganizeState(ctx context.Context, data *models.OrganizeItemsData) (*models.OrganizeItemsResult, error) {
	var out models.OrganizeItemsResult
	if err := z.do(ctx, http.MethodPost, "/papermill/items/organize/restore", data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
